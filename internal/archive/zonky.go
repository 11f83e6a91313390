package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// Zonky handles the distribution format used by the zonky.io embedded
// postgres binaries: a .jar (itself a zip) containing a single .txz
// payload at its root. Extraction is a two-stage pipe: unpack the jar
// with System into a scratch directory, locate the .txz member, then
// hand it to Sharp for the real unpack. Named for the distribution it
// targets, matching the naming the wider embedded-postgres ecosystem
// uses for this exact packaging scheme.
type Zonky struct {
	fs    *fsutil.OS
	inner *Sharp
}

// NewZonky constructs the jar-wrapped-txz strategy.
func NewZonky(exec procexec.Executor, tarPath string) *Zonky {
	return &Zonky{fs: fsutil.New(), inner: NewSharp(exec, tarPath)}
}

func (z *Zonky) findTxzMember(jarPath string) (string, error) {
	entries, err := NewSystem().Enumerate(jarPath)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir && strings.HasSuffix(strings.ToLower(e.Name), ".txz") {
			return e.Name, nil
		}
	}
	return "", fmt.Errorf("archive: no .txz member found in %s", jarPath)
}

func (z *Zonky) Enumerate(path string) ([]Entry, error) {
	member, err := z.findTxzMember(path)
	if err != nil {
		return nil, err
	}
	scratch, err := os.MkdirTemp("", "zonky-enumerate-")
	if err != nil {
		return nil, fmt.Errorf("archive: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := NewSystem().Extract(context.Background(), path, scratch, Options{}); err != nil {
		return nil, err
	}
	return z.inner.Enumerate(filepath.Join(scratch, filepath.FromSlash(member)))
}

func (z *Zonky) Extract(ctx context.Context, path, destDir string, opts Options) error {
	member, err := z.findTxzMember(path)
	if err != nil {
		return err
	}

	scratch, err := os.MkdirTemp("", "zonky-extract-")
	if err != nil {
		return fmt.Errorf("archive: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := NewSystem().Extract(ctx, path, scratch, Options{}); err != nil {
		return fmt.Errorf("archive: unpack jar %s: %w", path, err)
	}

	txzPath := filepath.Join(scratch, filepath.FromSlash(member))
	if err := z.fs.EnsureDirectory(destDir); err != nil {
		return err
	}
	return z.inner.Extract(ctx, txzPath, destDir, opts)
}
