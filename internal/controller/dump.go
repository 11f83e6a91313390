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

// DumpController wraps pg_dump.
type DumpController struct {
	base
	audit *security.AuditLogger
	log   logger.Logger
}

// NewDump constructs a DumpController bound to binaryPath.
func NewDump(binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor, audit *security.AuditLogger, log logger.Logger) *DumpController {
	return &DumpController{base: newBase(KindDump, binaryPath, instCfg, exec), audit: audit, log: log}
}

// Dump runs pg_dump with opts against cluster.
func (c *DumpController) Dump(ctx context.Context, cluster buildopts.DataClusterConfiguration, opts buildopts.DumpOptions) error {
	if err := opts.Validate(); err != nil {
		return errs.Validation("cluster.dump", cluster.UniqueID, err)
	}

	args := connectionArgs(cluster, opts.User)
	if opts.TargetFormat != "" {
		args = append(args, "-F", string(opts.TargetFormat))
	}
	if opts.Jobs > 1 {
		args = append(args, "-j", strconv.Itoa(opts.Jobs))
	}
	if opts.Compression > 0 {
		args = append(args, "-Z", strconv.Itoa(opts.Compression))
	}
	if opts.SchemaOnly {
		args = append(args, "--schema-only")
	}
	if opts.DataOnly {
		args = append(args, "--data-only")
	}
	if opts.NoOwner {
		args = append(args, "--no-owner")
	}
	if opts.NoPrivileges {
		args = append(args, "--no-privileges")
	}
	if opts.Blobs {
		args = append(args, "--blobs")
	}
	if opts.Role != "" {
		args = append(args, "--role", opts.Role)
	}
	for _, s := range opts.SchemasToDump {
		args = append(args, "-n", s)
	}
	for _, s := range opts.SchemasToExclude {
		args = append(args, "-N", s)
	}
	for _, t := range opts.TablesToDump {
		args = append(args, "-t", t)
	}
	for _, t := range opts.TablesToExclude {
		args = append(args, "-T", t)
	}
	if opts.OutputPath != "" {
		args = append(args, "-f", opts.OutputPath)
	}
	if opts.Database != "" {
		args = append(args, opts.Database)
	}

	var stderrLines []string
	procOpts := procexec.Options{ErrorLine: func(line string) {
		class := checks.ClassifyError(line)
		if class.Type == "ignorable" {
			if c.log != nil {
				c.log.Debug("pg_dump", "cluster", cluster.UniqueID, "stderr", line)
			}
			return
		}
		stderrLines = append(stderrLines, line)
		if c.log != nil {
			c.log.Warn("pg_dump", "cluster", cluster.UniqueID, "stderr", line, "hint", class.Hint)
		}
	}}
	if opts.Password != "" {
		procOpts.Env = append(os.Environ(), "PGPASSWORD="+opts.Password)
	}

	_, err := c.exec.Execute(ctx, c.binaryPath, args, procOpts)
	if c.audit != nil {
		c.audit.LogDumpRestore(security.GetCurrentUser(), cluster.UniqueID, "DUMP", opts.OutputPath, err)
	}
	if err != nil {
		if len(stderrLines) > 0 {
			return errs.Execution("cluster.dump", cluster.UniqueID, 0, fmt.Errorf("%w\n%s", err, checks.FormatMultipleErrors(stderrLines)))
		}
		return errs.Execution("cluster.dump", cluster.UniqueID, 0, err)
	}
	return nil
}
