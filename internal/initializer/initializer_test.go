package initializer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/controller"
	"pgspin/internal/environment"
	"pgspin/internal/procexec"
)

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, binaryPath string, args []string, opts procexec.Options) (procexec.Result, error) {
	return procexec.Result{}, nil
}

func newTestEnvironment(t *testing.T, instanceDir string) *environment.Environment {
	t.Helper()
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: instanceDir}
	return &environment.Environment{
		InstanceConfig: instCfg,
		InitDb:         controller.NewInitDb(filepath.Join(instanceDir, "bin", "initdb"), instCfg, fakeExecutor{}),
		Cluster:        controller.NewDataCluster(filepath.Join(instanceDir, "bin", "pg_ctl"), instCfg, fakeExecutor{}),
	}
}

func TestInitDb_Initialize_SkipsWhenAlreadyInitializedWithoutForce(t *testing.T) {
	instanceDir := t.TempDir()
	env := newTestEnvironment(t, instanceDir)
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1"}

	dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "PG_VERSION"), []byte("16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	init := InitDb{}
	if err := init.Initialize(context.Background(), env, cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "PG_VERSION")); err != nil {
		t.Errorf("PG_VERSION should be left untouched, stat error: %v", err)
	}
}

func TestInitDb_Initialize_ForceReInitializationDeletesDataDir(t *testing.T) {
	instanceDir := t.TempDir()
	env := newTestEnvironment(t, instanceDir)
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1"}

	dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dataDir, "PG_VERSION")
	if err := os.WriteFile(marker, []byte("16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	init := InitDb{ForceReInitialization: true}
	if err := init.Initialize(context.Background(), env, cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected old data directory to be removed, stat error = %v", err)
	}
}

func TestArchiveRestore_Initialize_RejectsMissingArchive(t *testing.T) {
	instanceDir := t.TempDir()
	env := newTestEnvironment(t, instanceDir)
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1"}

	ar := ArchiveRestore{ArchivePath: filepath.Join(instanceDir, "missing.zip"), Exec: fakeExecutor{}}
	if err := ar.Initialize(context.Background(), env, cfg); err == nil {
		t.Fatal("Initialize() with missing archive: want error, got nil")
	}
}

func TestArchiveRestore_Initialize_NoOpsWhenAlreadyInitialized(t *testing.T) {
	instanceDir := t.TempDir()
	env := newTestEnvironment(t, instanceDir)
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1"}

	dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dataDir, "PG_VERSION")
	if err := os.WriteFile(marker, []byte("16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ar := ArchiveRestore{ArchivePath: filepath.Join(instanceDir, "backup.zip"), Exec: fakeExecutor{}}
	if err := ar.Initialize(context.Background(), env, cfg); err != nil {
		t.Fatalf("Initialize() against already-initialized data directory without force: want no-op, got error %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected existing data directory to be left untouched, stat error = %v", err)
	}
}

func TestArchiveRestore_Initialize_ForceDeletesAlreadyInitialized(t *testing.T) {
	instanceDir := t.TempDir()
	env := newTestEnvironment(t, instanceDir)
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1"}

	dataDir := controller.DataFullPath(env.InstanceConfig, cfg)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(dataDir, "PG_VERSION")
	if err := os.WriteFile(marker, []byte("16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ar := ArchiveRestore{ArchivePath: filepath.Join(instanceDir, "missing.zip"), Exec: fakeExecutor{}, ForceReInitialization: true}
	if err := ar.Initialize(context.Background(), env, cfg); err == nil {
		t.Fatal("Initialize() with missing archive after force-delete: want error, got nil")
	}
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected old data directory to be removed before the archive check, stat error = %v", err)
	}
}

type recordingStep struct {
	name string
	err  error
	runs *[]string
}

func (r recordingStep) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	*r.runs = append(*r.runs, r.name)
	return r.err
}

func TestCompound_Initialize_AbortsOnFirstFailure(t *testing.T) {
	var runs []string
	c := Compound{Steps: []interface {
		Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error
	}{
		recordingStep{name: "a", runs: &runs},
		recordingStep{name: "b", err: errors.New("boom"), runs: &runs},
		recordingStep{name: "c", runs: &runs},
	}}

	err := c.Initialize(context.Background(), &environment.Environment{}, buildopts.DataClusterConfiguration{})
	if err == nil {
		t.Fatal("Initialize() want error, got nil")
	}
	if len(runs) != 2 || runs[0] != "a" || runs[1] != "b" {
		t.Errorf("runs = %v, want [a b] (step c must not run)", runs)
	}
}
