package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// Sharp is the tar-family strategy: archive/tar+compress/gzip for
// .tar.gz/.tgz, delegated to the external tar binary for .tar.xz/.txz
// since the standard library has no xz decoder and no pack in the
// surveyed corpus depends on one.
type Sharp struct {
	fs      *fsutil.OS
	exec    procexec.Executor
	tarPath string
}

// NewSharp constructs the tar-family strategy. tarPath is the external
// tar binary used only for .tar.xz/.txz members.
func NewSharp(exec procexec.Executor, tarPath string) *Sharp {
	return &Sharp{fs: fsutil.New(), exec: exec, tarPath: tarPath}
}

func isXz(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz")
}

func (s *Sharp) Enumerate(path string) ([]Entry, error) {
	if isXz(path) {
		return s.enumerateViaTar(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: gunzip %s: %w", path, err)
	}
	defer gz.Close()

	var entries []Entry
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("archive: read %s: %w", path, err)
		}
		entries = append(entries, Entry{
			Name:   hdr.Name,
			IsDir:  hdr.Typeflag == tar.TypeDir,
			Size:   hdr.Size,
			Target: hdr.Linkname,
		})
	}
	return entries, nil
}

// enumerateViaTar shells out to "tar -tJf" since the stdlib cannot decode
// xz streams without help.
func (s *Sharp) enumerateViaTar(path string) ([]Entry, error) {
	var entries []Entry
	lineFn := func(line string) {
		if line == "" {
			return
		}
		entries = append(entries, Entry{Name: strings.TrimSuffix(line, "/"), IsDir: strings.HasSuffix(line, "/")})
	}
	_, err := s.exec.Execute(context.Background(), s.tarPath, []string{"-tJf", path}, procexec.Options{OutputLine: lineFn})
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", path, err)
	}
	return entries, nil
}

func (s *Sharp) Extract(ctx context.Context, path, destDir string, opts Options) error {
	if isXz(path) {
		return s.extractViaTar(ctx, path, destDir, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive: gunzip %s: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var root string
	var rootSet bool
	// Link entries may reference entries not yet materialized; record
	// them and materialize them by copy once every regular file and
	// directory has been written.
	var pendingLinks []pendingLink

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("archive: read %s: %w", path, err)
		}

		if opts.Exclude != nil && opts.Exclude(hdr.Name) {
			continue
		}
		name := stripRoot(hdr.Name, opts.IgnoreRootDir, &root, &rootSet)
		if name == "" {
			continue
		}
		dest := filepath.Join(destDir, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := s.fs.EnsureDirectory(dest); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			pendingLinks = append(pendingLinks, pendingLink{dest: dest, target: hdr.Linkname})
		default:
			if err := writeFile(s.fs, dest, os.FileMode(hdr.Mode), tr, hdr.Size); err != nil {
				return err
			}
		}
	}

	for _, link := range pendingLinks {
		if err := ensureParent(s.fs, link.dest); err != nil {
			return err
		}
		if err := copyLinkTarget(link.dest, link.target); err != nil {
			return fmt.Errorf("archive: materialize link %s -> %s: %w", link.dest, link.target, err)
		}
	}
	return nil
}

// pendingLink is a symlink or hardlink entry deferred until every regular
// file and directory has been written, so its target is guaranteed to
// exist on disk by the time it is resolved.
type pendingLink struct {
	dest   string
	target string
}

// copyLinkTarget materializes dest as a copy of the file or directory
// tree a link entry points at, rather than creating an actual symlink or
// hardlink: platforms without symlink permissions (notably restricted
// Windows accounts) can still end up with a working instance directory.
// A relative target is resolved against dest's own directory, the
// convention tar uses for symlink targets; an absolute target is used as
// is. A target that does not exist there is an error; no other location
// is tried.
func copyLinkTarget(dest, target string) error {
	src := target
	if !filepath.IsAbs(src) {
		src = filepath.Join(filepath.Dir(dest), target)
	}
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("resolve link target %s: %w", src, err)
	}
	if info.IsDir() {
		return copyDir(src, dest)
	}
	return copyFile(src, dest, info.Mode())
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(p, target, info.Mode())
	})
}

// extractViaTar shells out to the external tar binary, the same
// delegation byrnedo-embedded-postgres uses for .tar.xz payloads.
func (s *Sharp) extractViaTar(ctx context.Context, path, destDir string, opts Options) error {
	if err := s.fs.EnsureDirectory(destDir); err != nil {
		return err
	}
	args := []string{"-xJf", path, "-C", destDir}
	if opts.IgnoreRootDir {
		args = append(args, "--strip-components=1")
	}
	_, err := s.exec.Execute(ctx, s.tarPath, args, procexec.Options{})
	if err != nil {
		return fmt.Errorf("archive: extract %s: %w", path, err)
	}
	if opts.Exclude != nil {
		return applyPostExtractExclude(destDir, opts.Exclude)
	}
	return nil
}

// applyPostExtractExclude removes entries tar already wrote to disk that
// the caller's exclude predicate rejects, since the external tar binary
// has no per-entry callback hook.
func applyPostExtractExclude(destDir string, exclude func(name string) bool) error {
	return filepath.Walk(destDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == destDir {
			return nil
		}
		rel, err := filepath.Rel(destDir, p)
		if err != nil {
			return err
		}
		if exclude(filepath.ToSlash(rel)) {
			if info.IsDir() {
				os.RemoveAll(p)
				return filepath.SkipDir
			}
			os.Remove(p)
		}
		return nil
	})
}
