package controller

import (
	"context"
	"path/filepath"

	"pgspin/internal/buildopts"
	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// InitDbController wraps initdb.
type InitDbController struct {
	base
}

// NewInitDb constructs an InitDbController bound to binaryPath.
func NewInitDb(binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor) *InitDbController {
	return &InitDbController{base: newBase(KindInitDb, binaryPath, instCfg, exec)}
}

// IsInitialized reports whether cluster's data directory already holds
// an initialized cluster: true iff <dataFullPath>/PG_VERSION exists.
func (c *InitDbController) IsInitialized(cluster buildopts.DataClusterConfiguration) bool {
	pgVersion := filepath.Join(DataFullPath(c.instCfg, cluster), "PG_VERSION")
	return c.fs.ProbePath(pgVersion) == fsutil.File
}

// Initialize runs initdb for cluster. A no-op if already initialized.
func (c *InitDbController) Initialize(ctx context.Context, cluster buildopts.DataClusterConfiguration) error {
	if c.IsInitialized(cluster) {
		return nil
	}
	cluster = cluster.WithDefaults()

	args := []string{
		"-U", cluster.Superuser,
		"-D", DataFullPath(c.instCfg, cluster),
		"-E", cluster.Encoding,
	}
	if cluster.Locale != "" {
		args = append(args, "--locale", cluster.Locale)
	}
	if cluster.AllowGroupAccess != nil && *cluster.AllowGroupAccess {
		args = append(args, "--allow-group-access")
	}

	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{})
	return err
}
