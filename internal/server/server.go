// Package server implements the top-level façade: one environment, a
// mapping of uniqueId -> cluster, and a bounded-parallelism fan-out over
// a caller-selected subset of clusters, grounded on the teacher's
// internal/backup/engine.go semaphore + sync.WaitGroup + atomic worker
// pool (generalized from "N parallel database dumps" to "N parallel
// per-cluster lifecycle operations").
package server

import (
	"context"
	"sync"
	"sync/atomic"

	"pgspin/internal/buildopts"
	"pgspin/internal/cluster"
	"pgspin/internal/environment"
	"pgspin/internal/errs"
	"pgspin/internal/logger"
)

// Event is delivered to a caller-supplied callback once per cluster
// per fan-out operation, always, whether the operation succeeded or
// failed.
type Event struct {
	Operation string
	ClusterID string
	ErrorInfo error
}

// EventFunc receives one Event per completed cluster task. cancel lets
// the callback abort the remainder of the fan-out by cancelling the
// context passed to the originating call.
type EventFunc func(event Event, cancel context.CancelFunc)

// Server holds one Environment and the set of clusters built against it.
// Mutations to the cluster map (Add, Get, List) are serialized under mu,
// the same mutex a fan-out snapshots the cluster list under, so
// Add/Get/List are linearizable with respect to any in-flight fan-out.
type Server struct {
	mu       sync.Mutex
	env      *environment.Environment
	clusters map[string]*cluster.DataCluster
	log      logger.Logger
}

// New constructs a Server bound to env with no clusters.
func New(env *environment.Environment, log logger.Logger) *Server {
	return &Server{env: env, clusters: make(map[string]*cluster.DataCluster), log: log}
}

// Environment returns the server's bound Environment.
func (s *Server) Environment() *environment.Environment { return s.env }

// AddCluster registers a new DataCluster under cfg.UniqueID. It is the
// caller's responsibility to have validated cfg against its siblings via
// buildopts.ServerBuilderOptions.Validate before calling AddCluster.
func (s *Server) AddCluster(cfg buildopts.DataClusterConfiguration) *cluster.DataCluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc := cluster.New(s.env, s.env.InstanceConfig, cfg)
	s.clusters[cfg.UniqueID] = dc
	return dc
}

// GetCluster looks up a cluster by its unique id.
func (s *Server) GetCluster(id string) (*cluster.DataCluster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc, ok := s.clusters[id]
	return dc, ok
}

// ListClusters returns every registered cluster, in no particular order.
func (s *Server) ListClusters() []*cluster.DataCluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*cluster.DataCluster, 0, len(s.clusters))
	for _, dc := range s.clusters {
		out = append(out, dc)
	}
	return out
}

// selected snapshots the cluster list under mu and resolves ids (empty
// meaning "all") to concrete DataCluster handles.
func (s *Server) selected(ids []string) ([]*cluster.DataCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		out := make([]*cluster.DataCluster, 0, len(s.clusters))
		for _, dc := range s.clusters {
			out = append(out, dc)
		}
		return out, nil
	}

	out := make([]*cluster.DataCluster, 0, len(ids))
	for _, id := range ids {
		dc, ok := s.clusters[id]
		if !ok {
			return nil, errs.Validationf("server.fanout", id, "unknown cluster id: %s", id)
		}
		out = append(out, dc)
	}
	return out, nil
}

// FanOutOptions configures a multi-cluster operation.
type FanOutOptions struct {
	// ClusterIDs selects which clusters participate; empty means all.
	ClusterIDs []string
	// MaxDegreeOfParallelism bounds concurrent per-cluster tasks; values
	// below 1 are treated as 1 (sequential fan-out).
	MaxDegreeOfParallelism int
	// OnEvent, if set, is invoked once per cluster with that cluster's
	// outcome, in completion order (unspecified relative to submission
	// order).
	OnEvent EventFunc
}

func (o FanOutOptions) dop() int {
	if o.MaxDegreeOfParallelism < 1 {
		return 1
	}
	return o.MaxDegreeOfParallelism
}

// fanOut runs fn once per selected cluster with bounded parallelism,
// capturing each cluster's error into an Event rather than aborting
// siblings. It returns the first error recorded (in completion order,
// not selection order) purely for a single-cluster-style caller; a multi-
// cluster caller should rely on OnEvent instead.
func (s *Server) fanOut(ctx context.Context, operation string, opts FanOutOptions, fn func(ctx context.Context, dc *cluster.DataCluster) error) error {
	clusters, err := s.selected(opts.ClusterIDs)
	if err != nil {
		return err
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, opts.dop())
	var wg sync.WaitGroup
	var firstErr atomic.Value // stores error

	for _, dc := range clusters {
		select {
		case <-fanCtx.Done():
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(dc *cluster.DataCluster) {
			defer wg.Done()
			defer func() { <-sem }()

			taskErr := fn(fanCtx, dc)
			if taskErr != nil {
				firstErr.CompareAndSwap(nil, taskErr)
				if s.log != nil {
					s.log.Error("cluster operation failed", "operation", operation, "cluster_id", dc.ID(), "error", taskErr)
				}
			}
			if opts.OnEvent != nil {
				opts.OnEvent(Event{Operation: operation, ClusterID: dc.ID(), ErrorInfo: taskErr}, cancel)
			}
		}(dc)
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Initialize runs Initialize on every selected cluster. init is shared
// across all selected clusters; callers needing per-cluster strategies
// should fan out themselves via ListClusters/GetCluster instead.
func (s *Server) Initialize(ctx context.Context, init cluster.Initializer, forceReInitialization bool, opts FanOutOptions) error {
	return s.fanOut(ctx, "initialize", opts, func(ctx context.Context, dc *cluster.DataCluster) error {
		return dc.Initialize(ctx, init, forceReInitialization)
	})
}

// Start runs Start on every selected cluster.
func (s *Server) Start(ctx context.Context, init cluster.Initializer, startup buildopts.StartupParameters, opts FanOutOptions) error {
	return s.fanOut(ctx, "start", opts, func(ctx context.Context, dc *cluster.DataCluster) error {
		return dc.Start(ctx, init, startup)
	})
}

// Stop runs Stop on every selected cluster.
func (s *Server) Stop(ctx context.Context, shutdown buildopts.ShutdownParameters, opts FanOutOptions) error {
	return s.fanOut(ctx, "stop", opts, func(ctx context.Context, dc *cluster.DataCluster) error {
		return dc.Stop(ctx, shutdown)
	})
}

// ReloadConfiguration runs ReloadConfiguration on every selected cluster.
func (s *Server) ReloadConfiguration(ctx context.Context, opts FanOutOptions) error {
	return s.fanOut(ctx, "reloadConfiguration", opts, func(ctx context.Context, dc *cluster.DataCluster) error {
		return dc.ReloadConfiguration(ctx)
	})
}

// Destroy runs Destroy on every selected cluster.
func (s *Server) Destroy(ctx context.Context, shutdown buildopts.ShutdownParameters, opts FanOutOptions) error {
	return s.fanOut(ctx, "destroy", opts, func(ctx context.Context, dc *cluster.DataCluster) error {
		return dc.Destroy(ctx, shutdown)
	})
}
