// Package artifact resolves a caller's artifact set into local files: it
// validates the set, then fans work out with bounded parallelism using a
// chan struct{} semaphore plus a sync.WaitGroup so at most maxDop
// downloads run concurrently.
package artifact

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"pgspin/internal/buildopts"
	"pgspin/internal/checks"
	"pgspin/internal/cloud"
	"pgspin/internal/errs"
	"pgspin/internal/fetch"
	"pgspin/internal/fsutil"
)

// Resolved is an artifact annotated with its concrete local path after
// Build. IsLocal is always true on a Resolved value.
type Resolved struct {
	buildopts.Artifact
	LocalPath string
}

// Builder materializes an artifact set into local files.
type Builder struct {
	fs         *fsutil.OS
	downloader *fetch.Downloader
	cloudCreds map[string]CloudCredentials
	maxDop     int
}

// CloudCredentials supplies the account-level fields ParseCloudURI cannot
// recover from the URI alone.
type CloudCredentials struct {
	AccessKey string
	SecretKey string
	Endpoint  string
}

// New constructs a Builder. cloudCreds maps a provider name ("s3",
// "azure", "gs", "minio", "b2") to the credentials used to build a
// cloud.Backend for that provider; a missing entry means artifacts on
// that provider cannot be fetched.
func New(downloader *fetch.Downloader, cloudCreds map[string]CloudCredentials, maxDop int) *Builder {
	if maxDop < 1 {
		maxDop = 1
	}
	return &Builder{fs: fsutil.New(), downloader: downloader, cloudCreds: cloudCreds, maxDop: maxDop}
}

// Build validates artifacts then resolves each to a local path: local
// artifacts pass through after an existence check, remote ones are
// downloaded (HTTP(S) or a cloud backend keyed by URI scheme).
func (b *Builder) Build(ctx context.Context, artifacts []buildopts.Artifact) ([]Resolved, error) {
	if err := buildopts.ValidateArtifacts(artifacts); err != nil {
		return nil, errs.Validation("artifact.build", "", err)
	}
	for _, a := range artifacts {
		if a.IsLocal() {
			if b.fs.ProbePath(a.Source) != fsutil.File {
				return nil, errs.Validationf("artifact.build", a.Source, "local artifact does not exist: %s", a.Source)
			}
		}
	}

	results := make([]Resolved, len(artifacts))
	errsOut := make([]error, len(artifacts))

	sem := make(chan struct{}, b.maxDop)
	var wg sync.WaitGroup

	for i, a := range artifacts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, a buildopts.Artifact) {
			defer wg.Done()
			defer func() { <-sem }()

			resolved, err := b.resolveOne(ctx, a)
			results[i] = resolved
			errsOut[i] = err
		}(i, a)
	}
	wg.Wait()

	for i, err := range errsOut {
		if err != nil {
			return nil, fmt.Errorf("artifact.build: %s: %w", artifacts[i].Source, err)
		}
	}
	for i := range results {
		results[i].Source = results[i].LocalPath
	}
	return results, nil
}

func (b *Builder) resolveOne(ctx context.Context, a buildopts.Artifact) (Resolved, error) {
	if a.IsLocal() {
		return Resolved{Artifact: a, LocalPath: a.Source}, nil
	}

	if cloud.IsCloudURI(a.Source) {
		return b.downloadFromCloud(ctx, a)
	}

	result, err := b.downloader.Download(ctx, a.Source, a.TargetDirectory, "", a.Force)
	if err != nil {
		if ctx.Err() != nil {
			return Resolved{}, errs.Cancelled("artifact.resolve", a.Source, ctx.Err())
		}
		return Resolved{}, errs.IO("artifact.resolve", a.Source, err)
	}
	return Resolved{Artifact: a, LocalPath: result.LocalPath}, nil
}

func (b *Builder) downloadFromCloud(ctx context.Context, a buildopts.Artifact) (Resolved, error) {
	uri, err := cloud.ParseCloudURI(a.Source)
	if err != nil {
		return Resolved{}, errs.Validation("artifact.resolve", a.Source, err)
	}

	creds, ok := b.cloudCreds[uri.Provider]
	if !ok {
		return Resolved{}, errs.Capability("artifact.resolve", a.Source, uri.Provider)
	}

	destName := fsutil.ConvertToValidFilename(uri.BaseName())
	destPath := filepath.Join(a.TargetDirectory, destName)

	if !a.Force && b.fs.ProbePath(destPath) == fsutil.File {
		return Resolved{Artifact: a, LocalPath: destPath}, nil
	}

	cfg := uri.ToConfig()
	// remotePath below is already the full key within the bucket.
	cfg.Prefix = ""
	cfg.AccessKey = creds.AccessKey
	cfg.SecretKey = creds.SecretKey
	if creds.Endpoint != "" {
		cfg.Endpoint = creds.Endpoint
	}

	backend, err := cloud.NewBackend(cfg)
	if err != nil {
		return Resolved{}, errs.Capability("artifact.resolve", a.Source, uri.Provider)
	}

	remotePath := uri.Path
	if strings.HasSuffix(remotePath, "/") {
		remotePath, err = latestObjectUnder(ctx, backend, remotePath)
		if err != nil {
			return Resolved{}, errs.IO("artifact.resolve", a.Source, err)
		}
		destName = fsutil.ConvertToValidFilename(path.Base(remotePath))
		destPath = filepath.Join(a.TargetDirectory, destName)
		if !a.Force && b.fs.ProbePath(destPath) == fsutil.File {
			return Resolved{Artifact: a, LocalPath: destPath}, nil
		}
	} else if ok, err := backend.Exists(ctx, remotePath); err != nil {
		return Resolved{}, errs.IO("artifact.resolve", a.Source, err)
	} else if !ok {
		return Resolved{}, errs.Validationf("artifact.resolve", a.Source, "remote object %s does not exist", remotePath)
	}

	if size, err := backend.GetSize(ctx, remotePath); err == nil {
		if avail := checks.CheckDiskSpaceCached(a.TargetDirectory); avail.AvailableBytes < uint64(size) {
			return Resolved{}, errs.IO("artifact.resolve", a.Source, fmt.Errorf("insufficient space in %s for a %s download", a.TargetDirectory, cloud.FormatSize(size)))
		}
	}

	if err := b.fs.EnsureDirectory(a.TargetDirectory); err != nil {
		return Resolved{}, errs.IO("artifact.resolve", a.Source, err)
	}
	if err := backend.Download(ctx, remotePath, destPath, nil); err != nil {
		return Resolved{}, errs.IO("artifact.resolve", a.Source, err)
	}
	return Resolved{Artifact: a, LocalPath: destPath}, nil
}

// latestObjectUnder resolves a cloud URI ending in "/" to the most
// recently modified object under that prefix, so an artifact source like
// "s3://bucket/postgres-builds/" always tracks the newest upload without
// the caller naming an exact key.
func latestObjectUnder(ctx context.Context, backend cloud.Backend, prefix string) (string, error) {
	objects, err := backend.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", prefix, err)
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("no objects found under prefix %s", prefix)
	}
	latest := objects[0]
	for _, o := range objects[1:] {
		if o.LastModified.After(latest.LastModified) {
			latest = o
		}
	}
	return latest.Key, nil
}
