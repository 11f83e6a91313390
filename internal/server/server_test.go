package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/cluster"
	"pgspin/internal/controller"
	"pgspin/internal/environment"
	"pgspin/internal/procexec"
)

type scriptedExecutor struct {
	mu     sync.Mutex
	failOn map[string]bool
}

func (s *scriptedExecutor) Execute(ctx context.Context, binaryPath string, args []string, opts procexec.Options) (procexec.Result, error) {
	s.mu.Lock()
	fail := s.failOn[binaryPath]
	s.mu.Unlock()
	if fail {
		return procexec.Result{ExitCode: 1}, &procexec.CommandExecutionFailure{ExitCode: 1, Message: "boom"}
	}
	return procexec.Result{ExitCode: 0}, nil
}

type fakeInitializer struct{}

func (fakeInitializer) Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error {
	return nil
}

func newTestServer(t *testing.T, n int) (*Server, *scriptedExecutor) {
	t.Helper()
	instanceDir := t.TempDir()
	instCfg := buildopts.InstanceConfiguration{InstanceDirectory: instanceDir}
	exec := &scriptedExecutor{failOn: map[string]bool{}}
	env := &environment.Environment{
		InstanceConfig: instCfg,
		InitDb:         controller.NewInitDb(filepath.Join(instanceDir, "bin", "initdb"), instCfg, exec),
		Cluster:        controller.NewDataCluster(filepath.Join(instanceDir, "bin", "pg_ctl"), instCfg, exec),
	}
	s := New(env, nil)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		s.AddCluster(buildopts.DataClusterConfiguration{UniqueID: id, Host: "localhost", Port: 50000 + i})
	}
	return s, exec
}

func TestServer_Initialize_FansOutToAllClustersByDefault(t *testing.T) {
	s, _ := newTestServer(t, 3)

	var mu sync.Mutex
	seen := map[string]bool{}
	err := s.Initialize(context.Background(), fakeInitializer{}, false, FanOutOptions{
		MaxDegreeOfParallelism: 2,
		OnEvent: func(e Event, cancel context.CancelFunc) {
			mu.Lock()
			seen[e.ClusterID] = true
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("got %d events, want 3: %v", len(seen), seen)
	}
	for _, dc := range s.ListClusters() {
		if dc.State() != 0 && dc.State().String() != "initialized" {
			t.Errorf("cluster %s state = %v, want initialized", dc.ID(), dc.State())
		}
	}
}

func TestServer_Initialize_SelectsSubsetOfClusters(t *testing.T) {
	s, _ := newTestServer(t, 3)

	var mu sync.Mutex
	var ids []string
	err := s.Initialize(context.Background(), fakeInitializer{}, false, FanOutOptions{
		ClusterIDs: []string{"c0", "c2"},
		OnEvent: func(e Event, cancel context.CancelFunc) {
			mu.Lock()
			ids = append(ids, e.ClusterID)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(ids), ids)
	}
	dc1, _ := s.GetCluster("c1")
	if dc1.State().String() != "uninitialized" {
		t.Errorf("c1 should be untouched, state = %v", dc1.State())
	}
}

func TestServer_Initialize_UnknownClusterIDFailsFast(t *testing.T) {
	s, _ := newTestServer(t, 1)
	err := s.Initialize(context.Background(), fakeInitializer{}, false, FanOutOptions{ClusterIDs: []string{"nope"}})
	if err == nil {
		t.Fatal("expected error for unknown cluster id")
	}
}

func TestServer_FanOut_OneFailureDoesNotAbortSiblings(t *testing.T) {
	s, _ := newTestServer(t, 4)
	// Initialize all first so Start has something to run against without
	// needing an initializer.
	if err := s.Initialize(context.Background(), fakeInitializer{}, false, FanOutOptions{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	failing := map[string]bool{"c1": true}
	var mu sync.Mutex
	results := map[string]error{}

	err := s.fanOut(context.Background(), "probe", FanOutOptions{
		MaxDegreeOfParallelism: 4,
		OnEvent: func(e Event, cancel context.CancelFunc) {
			mu.Lock()
			results[e.ClusterID] = e.ErrorInfo
			mu.Unlock()
		},
	}, func(ctx context.Context, dc *cluster.DataCluster) error {
		if failing[dc.ID()] {
			return fmt.Errorf("synthetic failure for %s", dc.ID())
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected fanOut to surface the single failure")
	}
	if len(results) != 4 {
		t.Fatalf("got %d events, want 4 (siblings must still run): %v", len(results), results)
	}
	for id, e := range results {
		if id == "c1" && e == nil {
			t.Errorf("expected c1 to have failed")
		}
		if id != "c1" && e != nil {
			t.Errorf("cluster %s unexpectedly failed: %v", id, e)
		}
	}
}
