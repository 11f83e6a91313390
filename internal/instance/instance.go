// Package instance assembles an instance directory (the "<install>/bin,
// lib, share" tree postgres and its extensions run from) out of an
// artifact set resolved by internal/artifact.
package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pgspin/internal/archive"
	"pgspin/internal/artifact"
	"pgspin/internal/buildopts"
	"pgspin/internal/checks"
	"pgspin/internal/errs"
	"pgspin/internal/fsutil"
	"pgspin/internal/logger"
	"pgspin/internal/procexec"
)

// Builder turns a ServerBuilderOptions' Instance + Artifacts into a
// populated instance directory.
type Builder struct {
	fs        *fsutil.OS
	artifacts *artifact.Builder
	exec      procexec.Executor
	log       logger.Logger
	tarPath   string
	maxDop    int
}

// New constructs an instance Builder. exec and tarPath are forwarded to
// archive.ForPath for strategies that shell out to an external tar.
func New(artifacts *artifact.Builder, exec procexec.Executor, log logger.Logger, tarPath string, maxDop int) *Builder {
	if maxDop < 1 {
		maxDop = 1
	}
	return &Builder{fs: fsutil.New(), artifacts: artifacts, exec: exec, log: log, tarPath: tarPath, maxDop: maxDop}
}

const pgAdminPrefix = "pgsql/pgAdmin"

// Build resolves artifacts, then extracts the Main artifact into the
// instance directory (dropping its container root, optionally excluding
// the bundled pgAdmin tree) followed by every Extension artifact in
// parallel.
func (b *Builder) Build(ctx context.Context, instCfg buildopts.InstanceConfiguration, artifacts []buildopts.Artifact) error {
	resolved, err := b.artifacts.Build(ctx, artifacts)
	if err != nil {
		return fmt.Errorf("instance.build: %w", err)
	}

	if instCfg.CleanInstall {
		if err := b.fs.DeleteDirectory(instCfg.InstanceDirectory); err != nil {
			return errs.IO("instance.build", instCfg.InstanceDirectory, err)
		}
	}
	if err := b.fs.EnsureDirectory(instCfg.InstanceDirectory); err != nil {
		return errs.IO("instance.build", instCfg.InstanceDirectory, err)
	}

	var main *artifact.Resolved
	var extensions []artifact.Resolved
	for i := range resolved {
		if resolved[i].Kind == buildopts.KindMain {
			main = &resolved[i]
		} else {
			extensions = append(extensions, resolved[i])
		}
	}
	if main == nil {
		return errs.Validationf("instance.build", "", "no main artifact in resolved set")
	}

	if err := b.checkDiskSpace(instCfg, main, extensions); err != nil {
		return err
	}

	mainExtractor, err := b.extractorFor(*main)
	if err != nil {
		return errs.Validation("instance.build", main.LocalPath, err)
	}
	opts := archive.Options{IgnoreRootDir: true}
	if instCfg.ExcludePgAdmin {
		opts.Exclude = func(name string) bool { return strings.HasPrefix(name, pgAdminPrefix) }
	}
	if err := mainExtractor.Extract(ctx, main.LocalPath, instCfg.InstanceDirectory, opts); err != nil {
		return errs.IO("instance.build", main.LocalPath, err)
	}

	return b.extractExtensions(ctx, instCfg, extensions)
}

// checkDiskSpace validates that the instance directory's filesystem has
// enough headroom for the main artifact plus every extension before any
// extraction begins, so a build fails fast instead of partway through.
func (b *Builder) checkDiskSpace(instCfg buildopts.InstanceConfiguration, main *artifact.Resolved, extensions []artifact.Resolved) error {
	var totalSize int64
	for _, a := range append([]artifact.Resolved{*main}, extensions...) {
		if info, err := os.Stat(a.LocalPath); err == nil {
			totalSize += info.Size()
		}
	}

	check := checks.CheckDiskSpaceForExtract(instCfg.InstanceDirectory, totalSize)
	if check.Warning && b.log != nil {
		b.log.Warn("Low disk space for instance build", "path", check.Path, "available", check.AvailableBytes)
	}
	if check.Critical {
		return errs.IO("instance.build", instCfg.InstanceDirectory, fmt.Errorf("insufficient disk space: %s", checks.FormatDiskSpaceMessage(check)))
	}
	return nil
}

func (b *Builder) extractExtensions(ctx context.Context, instCfg buildopts.InstanceConfiguration, extensions []artifact.Resolved) error {
	sem := make(chan struct{}, b.maxDop)
	var wg sync.WaitGroup
	errsOut := make([]error, len(extensions))

	for i, ext := range extensions {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ext artifact.Resolved) {
			defer wg.Done()
			defer func() { <-sem }()
			errsOut[i] = b.extractOne(ctx, instCfg, ext)
		}(i, ext)
	}
	wg.Wait()

	for i, err := range errsOut {
		if err != nil {
			return fmt.Errorf("instance.build: extension %s: %w", extensions[i].Source, err)
		}
	}
	return nil
}

func (b *Builder) extractOne(ctx context.Context, instCfg buildopts.InstanceConfiguration, ext artifact.Resolved) error {
	extractor, err := b.extractorFor(ext)
	if err != nil {
		return errs.Validation("instance.build", ext.LocalPath, err)
	}

	entries, err := extractor.Enumerate(ext.LocalPath)
	if err != nil {
		return errs.IO("instance.build", ext.LocalPath, err)
	}

	container, ok := detectContainerRoot(entries)
	opts := archive.Options{}
	if ok {
		prefix := container + "/"
		opts.IgnoreRootDir = true
		opts.Exclude = func(name string) bool { return !strings.HasPrefix(name, prefix) && name != container }
	}

	if err := extractor.Extract(ctx, ext.LocalPath, instCfg.InstanceDirectory, opts); err != nil {
		return errs.IO("instance.build", ext.LocalPath, err)
	}
	return nil
}

// extractorFor dispatches a.ExtractionStrategy by name when the artifact
// names one explicitly, otherwise sniffs the strategy from the local
// file's extension, falling back to Sharp (the factory's own default)
// when neither resolves.
func (b *Builder) extractorFor(a artifact.Resolved) (archive.Extractor, error) {
	if a.ExtractionStrategy != "" {
		return archive.ForStrategy(string(a.ExtractionStrategy), b.exec, b.tarPath)
	}
	if extractor, err := archive.ForPath(a.LocalPath, b.exec, b.tarPath); err == nil {
		return extractor, nil
	}
	return archive.ForStrategy("", b.exec, b.tarPath)
}

// detectContainerRoot looks for a single top-level directory that holds
// bin/, lib/, or share/ subdirectories, the shape most extension bundles
// ship in. When found, its name is the directory extraction should drop
// as a root segment.
func detectContainerRoot(entries []archive.Entry) (string, bool) {
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name, "/")
		for _, marker := range []string{"/bin", "/lib", "/share"} {
			if strings.HasSuffix(name, marker) {
				root := strings.TrimSuffix(name, marker)
				if root != "" && !strings.Contains(root, "/") {
					return root, true
				}
			}
		}
	}
	return "", false
}

// Destroy removes the instance directory if present.
func (b *Builder) Destroy(instCfg buildopts.InstanceConfiguration) error {
	if b.fs.ProbePath(instCfg.InstanceDirectory) == fsutil.DoesNotExist {
		return nil
	}
	if err := b.fs.DeleteDirectory(instCfg.InstanceDirectory); err != nil {
		return errs.IO("instance.destroy", instCfg.InstanceDirectory, err)
	}
	return nil
}

// BinaryPath joins the instance directory's bin folder with name.
func BinaryPath(instCfg buildopts.InstanceConfiguration, name string) string {
	return filepath.Join(instCfg.InstanceDirectory, "bin", name)
}
