package controller

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"pgspin/internal/buildopts"
	"pgspin/internal/checks"
	"pgspin/internal/errs"
	"pgspin/internal/logger"
	"pgspin/internal/procexec"
	"pgspin/internal/security"
)

// RestoreController wraps pg_restore.
type RestoreController struct {
	base
	audit *security.AuditLogger
	log   logger.Logger
}

// NewRestore constructs a RestoreController bound to binaryPath.
func NewRestore(binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor, audit *security.AuditLogger, log logger.Logger) *RestoreController {
	return &RestoreController{base: newBase(KindRestore, binaryPath, instCfg, exec), audit: audit, log: log}
}

// Restore runs pg_restore with opts against cluster.
func (c *RestoreController) Restore(ctx context.Context, cluster buildopts.DataClusterConfiguration, opts buildopts.RestoreOptions) error {
	args := connectionArgs(cluster, opts.User)
	if opts.Jobs > 1 {
		args = append(args, "-j", strconv.Itoa(opts.Jobs))
	}
	if opts.Clean {
		args = append(args, "--clean")
	}
	if opts.IfExists {
		args = append(args, "--if-exists")
	}
	if opts.NoOwner {
		args = append(args, "--no-owner")
	}
	if opts.NoPrivileges {
		args = append(args, "--no-privileges")
	}
	if opts.SingleTransaction {
		args = append(args, "--single-transaction")
	}
	for _, s := range opts.SchemasToRestore {
		args = append(args, "-n", s)
	}
	for _, t := range opts.TablesToRestore {
		args = append(args, "-t", t)
	}
	if opts.Database != "" {
		args = append(args, "-d", opts.Database)
	}
	args = append(args, opts.InputPath)

	var stderrLines []string
	procOpts := procexec.Options{ErrorLine: func(line string) {
		class := checks.ClassifyError(line)
		if class.Type == "ignorable" {
			if c.log != nil {
				c.log.Debug("pg_restore", "cluster", cluster.UniqueID, "stderr", line)
			}
			return
		}
		stderrLines = append(stderrLines, line)
		if c.log != nil {
			c.log.Warn("pg_restore", "cluster", cluster.UniqueID, "stderr", line, "hint", class.Hint)
		}
	}}
	if opts.Password != "" {
		procOpts.Env = append(os.Environ(), "PGPASSWORD="+opts.Password)
	}

	_, err := c.exec.Execute(ctx, c.binaryPath, args, procOpts)
	if c.audit != nil {
		c.audit.LogDumpRestore(security.GetCurrentUser(), cluster.UniqueID, "RESTORE", opts.InputPath, err)
	}
	if err != nil {
		if len(stderrLines) > 0 {
			return errs.Execution("cluster.restore", cluster.UniqueID, 0, fmt.Errorf("%w\n%s", err, checks.FormatMultipleErrors(stderrLines)))
		}
		return errs.Execution("cluster.restore", cluster.UniqueID, 0, err)
	}
	return nil
}
