package environment

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/procexec"
)

type fakeExecutor struct {
	versionOutput map[string]string
	fail          map[string]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, binaryPath string, args []string, opts procexec.Options) (procexec.Result, error) {
	if f.fail[binaryPath] {
		return procexec.Result{ExitCode: 1}, &procexec.CommandExecutionFailure{ExitCode: 1, Message: "boom"}
	}
	if opts.OutputLine != nil {
		if v, ok := f.versionOutput[binaryPath]; ok {
			opts.OutputLine(v)
		}
	}
	return procexec.Result{ExitCode: 0}, nil
}

func writeFakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func binExt() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func TestBuilder_Validate_AllPresent(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.Mkdir(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ext := binExt()
	versions := map[string]string{}
	for _, name := range []string{"initdb" + ext, "pg_ctl" + ext, "postgres" + ext} {
		path := writeFakeBinary(t, binDir, name)
		versions[path] = "postgres (PostgreSQL) 16.2"
	}

	b := New(&fakeExecutor{versionOutput: versions}, nil, nil, 0)
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: dir}
	got, err := b.Validate(context.Background(), instCfg)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Validate() returned %d versions, want 3", len(got))
	}
}

func TestBuilder_Validate_MissingBinaryFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	b := New(&fakeExecutor{}, nil, nil, 0)
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: dir}
	if _, err := b.Validate(context.Background(), instCfg); err == nil {
		t.Fatal("Validate() with no binaries present: want error, got nil")
	}
}

func TestBuilder_Build_MinimalWhenOptionalBinariesAbsent(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.Mkdir(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ext := binExt()
	for _, name := range []string{"initdb" + ext, "pg_ctl" + ext} {
		writeFakeBinary(t, binDir, name)
	}

	b := New(&fakeExecutor{}, nil, nil, 0)
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: dir}
	env, err := b.Build(context.Background(), instCfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if env.Mode != Minimal {
		t.Errorf("Mode = %v, want Minimal", env.Mode)
	}
	if len(env.Missing) != 3 {
		t.Errorf("Missing = %v, want 3 entries", env.Missing)
	}
	if env.Sql != nil || env.Dump != nil || env.Restore != nil {
		t.Error("optional controllers should be nil in Minimal mode")
	}
}

func TestBuilder_Build_StandardWhenAllPresent(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.Mkdir(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ext := binExt()
	versions := map[string]string{}
	for _, name := range []string{"initdb", "pg_ctl", "psql", "pg_dump", "pg_restore"} {
		path := writeFakeBinary(t, binDir, name+ext)
		versions[path] = "16.2"
	}

	b := New(&fakeExecutor{versionOutput: versions}, nil, nil, 0)
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: dir}
	env, err := b.Build(context.Background(), instCfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if env.Mode != Standard {
		t.Errorf("Mode = %v, want Standard", env.Mode)
	}
	if env.Sql == nil || env.Dump == nil || env.Restore == nil {
		t.Error("expected all optional controllers populated in Standard mode")
	}
	if len(env.Missing) != 0 {
		t.Errorf("Missing = %v, want none", env.Missing)
	}
}

func TestModeString(t *testing.T) {
	if Minimal.String() != "minimal" {
		t.Errorf("Minimal.String() = %q, want %q", Minimal.String(), "minimal")
	}
	if Standard.String() != "standard" {
		t.Errorf("Standard.String() = %q, want %q", Standard.String(), "standard")
	}
}
