// Package initializer implements the pluggable strategies that prepare a
// cluster's data directory before its first start: fresh initdb, restore
// from a previously archived data directory, and a sequential compound
// of other strategies.
package initializer

import (
	"context"
	"fmt"

	"pgspin/internal/archive"
	"pgspin/internal/buildopts"
	"pgspin/internal/controller"
	"pgspin/internal/environment"
	"pgspin/internal/errs"
	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// InitDb initializes a fresh data directory via the initdb controller.
// If ForceReInitialization is set, an already-initialized directory is
// deleted and reinitialized; otherwise an already-initialized directory
// is left untouched.
type InitDb struct {
	ForceReInitialization bool
}

// Initialize runs initdb for cfg, unless it's already initialized and
// ForceReInitialization is false.
func (i InitDb) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	if env.InitDb.IsInitialized(cfg) {
		if !i.ForceReInitialization {
			return nil
		}
		dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
		if err := fsutil.New().DeleteDirectory(dataDir); err != nil {
			return errs.IO("initializer.initdb", dataDir, err)
		}
	}
	return env.InitDb.Initialize(ctx, cfg)
}

// ArchiveRestore extracts a previously archived data directory straight
// into the cluster's data directory. If ForceReInitialization is set, an
// already-initialized directory is deleted and restored into;
// otherwise an already-initialized directory is left untouched, mirroring
// InitDb's delete-then-reinitialize/no-op behavior.
type ArchiveRestore struct {
	ArchivePath           string
	Exec                  procexec.Executor
	TarPath               string
	ForceReInitialization bool
}

// Initialize extracts a.ArchivePath into cfg's data directory, unless
// it's already initialized and ForceReInitialization is false.
func (a ArchiveRestore) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
	fs := fsutil.New()

	if env.InitDb.IsInitialized(cfg) {
		if !a.ForceReInitialization {
			return nil
		}
		if err := fs.DeleteDirectory(dataDir); err != nil {
			return errs.IO("initializer.archiveRestore", dataDir, err)
		}
	}

	if fs.ProbePath(a.ArchivePath) != fsutil.File {
		return errs.Validationf("initializer.archiveRestore", a.ArchivePath, "archive file does not exist")
	}

	if err := fs.EnsureDirectory(dataDir); err != nil {
		return errs.IO("initializer.archiveRestore", dataDir, err)
	}

	extractor, err := archive.ForPath(a.ArchivePath, a.Exec, a.TarPath)
	if err != nil {
		extractor, err = archive.ForStrategy("", a.Exec, a.TarPath)
	}
	if err != nil {
		return errs.Validation("initializer.archiveRestore", a.ArchivePath, err)
	}

	if err := extractor.Extract(ctx, a.ArchivePath, dataDir, archive.Options{IgnoreRootDir: false}); err != nil {
		return errs.IO("initializer.archiveRestore", a.ArchivePath, err)
	}
	return nil
}

// Compound runs a sequence of Initializers in order, aborting on the
// first failure.
type Compound struct {
	Steps []interface {
		Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error
	}
}

// Initialize runs every step in order, stopping and returning the first
// error encountered.
func (c Compound) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	for i, step := range c.Steps {
		if err := step.Initialize(ctx, env, cfg); err != nil {
			return fmt.Errorf("initializer.compound: step %d: %w", i, err)
		}
	}
	return nil
}
