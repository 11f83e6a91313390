package cluster

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/controller"
	"pgspin/internal/environment"
	"pgspin/internal/procexec"
)

type scriptedExecutor struct {
	t *testing.T
}

func (s *scriptedExecutor) Execute(ctx context.Context, binaryPath string, args []string, opts procexec.Options) (procexec.Result, error) {
	return procexec.Result{ExitCode: 0}, nil
}

type fakeInitializer struct {
	called int
	err    error
}

func (f *fakeInitializer) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	f.called++
	return f.err
}

func newTestCluster(t *testing.T) (*DataCluster, string) {
	t.Helper()
	instanceDir := t.TempDir()
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: instanceDir}
	exec := &scriptedExecutor{t: t}
	env := &environment.Environment{
		InstanceConfig: instCfg,
		InitDb:         controller.NewInitDb(filepath.Join(instanceDir, "bin", "initdb"), instCfg, exec),
		Cluster:        controller.NewDataCluster(filepath.Join(instanceDir, "bin", "pg_ctl"), instCfg, exec),
	}
	cfg := buildopts.DataClusterConfiguration{UniqueID: "c1", Host: "localhost", Port: 55432}
	return New(env, instCfg, cfg), instanceDir
}

func TestDataCluster_Initialize_RunsOnceUnlessForced(t *testing.T) {
	dc, _ := newTestCluster(t)
	init := &fakeInitializer{}

	if err := dc.Initialize(context.Background(), init, false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if dc.State() != Initialized {
		t.Errorf("State() = %v, want Initialized", dc.State())
	}
	if err := dc.Initialize(context.Background(), init, false); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if init.called != 1 {
		t.Errorf("initializer called %d times, want 1 (second call should be a no-op)", init.called)
	}

	if err := dc.Initialize(context.Background(), init, true); err != nil {
		t.Fatalf("forced Initialize() error = %v", err)
	}
	if init.called != 2 {
		t.Errorf("initializer called %d times after force, want 2", init.called)
	}
}

func TestDataCluster_Start_RunsInitializerWhenUninitialized(t *testing.T) {
	dc, _ := newTestCluster(t)
	init := &fakeInitializer{}

	if err := dc.Start(context.Background(), init, buildopts.StartupParameters{Wait: false}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if init.called != 1 {
		t.Errorf("initializer called %d times, want 1", init.called)
	}
	if dc.State() != Running {
		t.Errorf("State() = %v, want Running", dc.State())
	}
}

func TestDataCluster_Start_WithoutInitializerFailsWhenUninitialized(t *testing.T) {
	dc, _ := newTestCluster(t)
	err := dc.Start(context.Background(), nil, buildopts.StartupParameters{})
	if err == nil {
		t.Fatal("Start() with no initializer on an uninitialized cluster: want error, got nil")
	}
}

func TestDataCluster_Start_WaitsForListener(t *testing.T) {
	dc, _ := newTestCluster(t)
	init := &fakeInitializer{}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	dc.cfg.Host = "127.0.0.1"
	dc.cfg.Port = port

	if err := dc.Start(context.Background(), init, buildopts.StartupParameters{Wait: true, WaitTimeoutSecs: 2}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestDataCluster_Start_WaitTimesOutWhenNothingListens(t *testing.T) {
	dc, _ := newTestCluster(t)
	init := &fakeInitializer{}
	dc.cfg.Host = "127.0.0.1"
	dc.cfg.Port = 1 // reserved, nothing should be listening

	err := dc.Start(context.Background(), init, buildopts.StartupParameters{Wait: true, WaitTimeoutSecs: 1})
	if err == nil {
		t.Fatal("Start() with nothing listening: want timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want a timeout message", err)
	}
}

func TestDataCluster_Stop_RequiresRunning(t *testing.T) {
	dc, _ := newTestCluster(t)
	err := dc.Stop(context.Background(), buildopts.DefaultShutdownParameters())
	if err == nil {
		t.Fatal("Stop() on an uninitialized cluster: want error, got nil")
	}
}

func TestDataCluster_ListDatabases_RequiresSqlController(t *testing.T) {
	dc, _ := newTestCluster(t)
	err := dc.ListDatabases(context.Background(), nil)
	if err == nil {
		t.Fatal("ListDatabases() in Minimal mode: want capability error, got nil")
	}
}

func TestDataCluster_Probe_ReflectsUninitializedDisk(t *testing.T) {
	dc, _ := newTestCluster(t)
	if err := dc.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if dc.State() != Uninitialized {
		t.Errorf("State() = %v, want Uninitialized", dc.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Uninitialized: "uninitialized",
		Initialized:   "initialized",
		Running:       "running",
		Stopped:       "stopped",
		Destroyed:     "destroyed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
