package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/errs"
	"pgspin/internal/fetch"
)

func TestBuilder_Build_LocalPassthrough(t *testing.T) {
	tmpDir := t.TempDir()
	mainPath := filepath.Join(tmpDir, "postgres.zip")
	if err := os.WriteFile(mainPath, []byte("fake"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	b := New(fetch.New(nil, nil, fetch.DefaultRetryPolicy()), nil, 4)
	artifacts := []buildopts.Artifact{
		{Kind: buildopts.KindMain, Source: mainPath, TargetDirectory: tmpDir},
	}

	resolved, err := b.Build(context.Background(), artifacts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("Build() returned %d results, want 1", len(resolved))
	}
	if resolved[0].LocalPath != mainPath {
		t.Errorf("LocalPath = %q, want %q", resolved[0].LocalPath, mainPath)
	}
}

func TestBuilder_Build_MissingLocalFile(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(fetch.New(nil, nil, fetch.DefaultRetryPolicy()), nil, 4)
	artifacts := []buildopts.Artifact{
		{Kind: buildopts.KindMain, Source: filepath.Join(tmpDir, "missing.zip"), TargetDirectory: tmpDir},
	}

	if _, err := b.Build(context.Background(), artifacts); err == nil {
		t.Fatal("Build() with missing local artifact: want error, got nil")
	}
}

func TestBuilder_Build_RejectsInvalidArtifactSet(t *testing.T) {
	tests := []struct {
		name      string
		artifacts []buildopts.Artifact
	}{
		{
			name:      "no main artifact",
			artifacts: []buildopts.Artifact{{Kind: buildopts.KindExtension, Source: "/a"}},
		},
		{
			name: "two main artifacts",
			artifacts: []buildopts.Artifact{
				{Kind: buildopts.KindMain, Source: "/a"},
				{Kind: buildopts.KindMain, Source: "/b"},
			},
		},
		{
			name: "duplicate source",
			artifacts: []buildopts.Artifact{
				{Kind: buildopts.KindMain, Source: "/a"},
				{Kind: buildopts.KindExtension, Source: "/a"},
			},
		},
	}

	b := New(fetch.New(nil, nil, fetch.DefaultRetryPolicy()), nil, 4)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Build(context.Background(), tt.artifacts); err == nil {
				t.Fatal("Build(): want error, got nil")
			}
		})
	}
}

func TestBuilder_Build_UnknownCloudProviderFailsCapability(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(fetch.New(nil, nil, fetch.DefaultRetryPolicy()), nil, 4)
	artifacts := []buildopts.Artifact{
		{Kind: buildopts.KindMain, Source: "s3://bucket/path/postgres.zip", TargetDirectory: tmpDir},
	}

	_, err := b.Build(context.Background(), artifacts)
	if err == nil {
		t.Fatal("Build() with no configured s3 credentials: want error, got nil")
	}
	if !errs.Is(err, errs.KindCapability) {
		t.Errorf("Build() error kind = %v, want %v", errs.KindOf(err), errs.KindCapability)
	}
}
