// Package archive implements the artifact extraction strategies: a
// stdlib archive/zip backed System strategy, a stdlib archive/tar plus
// compress/gzip backed Sharp strategy for .tar.gz, and delegation to an
// external tar binary via internal/procexec for .tar.xz, since the
// standard library has no xz decoder.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// Entry describes one member of an archive, as reported by Enumerate.
type Entry struct {
	Name   string
	IsDir  bool
	Size   int64
	Target string // symlink target, if this entry is a symlink
}

// Options controls how an archive is unpacked.
type Options struct {
	// IgnoreRootDir strips a single common leading path component shared
	// by every entry, so "postgresql-16.2/bin/postgres" lands at
	// "bin/postgres" in the destination.
	IgnoreRootDir bool
	// Exclude, if set, skips any entry whose name it returns true for.
	// System and the gzip path of Sharp pass the entry name as stored in
	// the archive, before IgnoreRootDir strips anything.
	Exclude func(name string) bool
}

// Extractor is implemented by each archive strategy.
type Extractor interface {
	Enumerate(path string) ([]Entry, error)
	Extract(ctx context.Context, path, destDir string, opts Options) error
}

// Compressor is implemented by strategies that can also produce an
// archive, used by cluster archiving, the sibling operation to
// extraction.
type Compressor interface {
	Compress(ctx context.Context, srcDir, destPath string, opts CompressOptions) error
}

// CompressOptions controls archive creation.
type CompressOptions struct {
	IncludeRoot bool
	Exclude     func(name string) bool
}

// ForStrategy constructs the strategy named by name ("system", "sharp",
// or "zonky"), defaulting to sharp when name is empty. This is the
// by-name dispatch an artifact's ExtractionStrategy field selects;
// ForPath remains for callers that only have a file to sniff.
func ForStrategy(name string, exec procexec.Executor, tarPath string) (Extractor, error) {
	switch name {
	case "", "sharp":
		return NewSharp(exec, tarPath), nil
	case "system":
		return NewSystem(), nil
	case "zonky":
		return NewZonky(exec, tarPath), nil
	default:
		return nil, fmt.Errorf("archive: unknown extraction strategy %q", name)
	}
}

// ForPath selects a strategy by file extension. Used when an artifact's
// ExtractionStrategy is unset and extension sniffing is the only signal
// available.
func ForPath(path string, exec procexec.Executor, tarPath string) (Extractor, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return NewSystem(), nil
	case strings.HasSuffix(lower, ".jar"):
		return NewZonky(exec, tarPath), nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return NewSharp(exec, tarPath), nil
	default:
		return nil, fmt.Errorf("archive: no extraction strategy for %s", path)
	}
}

func stripRoot(name string, ignoreRootDir bool, root *string, rootSet *bool) string {
	if !ignoreRootDir {
		return name
	}
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 {
		return name
	}
	if !*rootSet {
		*root = parts[0]
		*rootSet = true
	}
	if parts[0] == *root {
		return parts[1]
	}
	return name
}

func ensureParent(fs *fsutil.OS, path string) error {
	return fs.EnsureDirectory(filepath.Dir(path))
}

func writeFile(fs *fsutil.OS, destPath string, mode os.FileMode, r io.Reader, size int64) error {
	if err := ensureParent(fs, destPath); err != nil {
		return err
	}
	if size == 0 {
		_, err := fs.TouchSentinel(destPath)
		if err != nil {
			return err
		}
		return os.Chmod(destPath, mode)
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", destPath, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("archive: write %s: %w", destPath, err)
	}
	return nil
}

// System is the archive/zip backed strategy, used for .zip and, as a
// first unpacking pass, for the outer container of a .jar (Zonky).
type System struct {
	fs *fsutil.OS
}

// NewSystem constructs the stdlib zip strategy.
func NewSystem() *System { return &System{fs: fsutil.New()} }

func (s *System) Enumerate(path string) ([]Entry, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer r.Close()

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, Entry{Name: f.Name, IsDir: f.FileInfo().IsDir(), Size: int64(f.UncompressedSize64)})
	}
	return entries, nil
}

func (s *System) Extract(ctx context.Context, path, destDir string, opts Options) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer r.Close()

	var root string
	var rootSet bool
	for _, f := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if opts.Exclude != nil && opts.Exclude(f.Name) {
			continue
		}
		name := stripRoot(f.Name, opts.IgnoreRootDir, &root, &rootSet)
		if name == "" {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(name))

		if f.FileInfo().IsDir() {
			if err := s.fs.EnsureDirectory(dest); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("archive: open entry %s: %w", f.Name, err)
		}
		err = writeFile(s.fs, dest, f.Mode(), rc, int64(f.UncompressedSize64))
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *System) Compress(ctx context.Context, srcDir, destPath string, opts CompressOptions) error {
	if err := ensureParent(s.fs, destPath); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", destPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	base := filepath.Base(srcDir)
	return filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if opts.IncludeRoot {
			name = base + "/" + name
		}
		if opts.Exclude != nil && opts.Exclude(name) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}

		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
}
