// Package cluster implements the data cluster lifecycle state machine:
// Uninitialized -> Initialized -> Running <-> Stopped -> Destroyed,
// layered on top of internal/controller's pg_ctl and initdb wrappers.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"pgspin/internal/archive"
	"pgspin/internal/buildopts"
	"pgspin/internal/controller"
	"pgspin/internal/environment"
	"pgspin/internal/errs"
)

// State names a point in a DataCluster's lifecycle.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Initializer prepares a cluster's data directory before first start.
// Distinct strategies (plain initdb, archive restore, a sequential
// compound of both) implement this, selected per cluster by the caller
// building the ServerBuilderOptions.
type Initializer interface {
	Initialize(ctx context.Context, env *environment.Environment, cfg buildopts.DataClusterConfiguration) error
}

// DataCluster is one managed PostgreSQL data directory and its current
// lifecycle state. All state transitions are serialized by mu: pg_ctl
// itself is not safe to invoke concurrently against the same data
// directory from two goroutines.
type DataCluster struct {
	mu      sync.Mutex
	state   State
	cfg     buildopts.DataClusterConfiguration
	instCfg buildopts.InstanceConfiguration
	env     *environment.Environment
}

// New constructs a DataCluster bound to env and cfg, in the
// Uninitialized state. Callers that know the data directory already
// holds an initialized cluster (e.g. on process restart) should call
// Probe to reconcile the in-memory state with what's on disk.
func New(env *environment.Environment, instCfg buildopts.InstanceConfiguration, cfg buildopts.DataClusterConfiguration) *DataCluster {
	return &DataCluster{state: Uninitialized, cfg: cfg, instCfg: instCfg, env: env}
}

// ID returns the cluster's configured unique id.
func (d *DataCluster) ID() string { return d.cfg.UniqueID }

// State returns the cluster's current lifecycle state.
func (d *DataCluster) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Probe reconciles in-memory state with what's actually on disk and
// running, for a DataCluster constructed against a pre-existing data
// directory. It should be called once, before any other operation.
func (d *DataCluster) Probe(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.env.InitDb.IsInitialized(d.cfg) {
		d.state = Uninitialized
		return nil
	}

	status, err := d.env.Cluster.GetStatus(ctx, d.cfg)
	if err != nil {
		return err
	}
	if status.Valid {
		d.state = Running
	} else {
		d.state = Stopped
	}
	return nil
}

// Initialize prepares the data directory via init, unless already
// Initialized and forceReInitialization is false, in which case it is a
// no-op.
func (d *DataCluster) Initialize(ctx context.Context, init Initializer, forceReInitialization bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Initialized && !forceReInitialization {
		return nil
	}
	if d.state != Uninitialized && d.state != Initialized {
		return errs.Validationf("cluster.initialize", d.cfg.UniqueID, "cannot initialize from state %s", d.state)
	}

	if err := init.Initialize(ctx, d.env, d.cfg); err != nil {
		return err
	}
	d.state = Initialized
	return nil
}

// Start brings the cluster up via pg_ctl start. If the cluster is still
// Uninitialized, init runs first. If startup.Wait is set, Start polls a
// TCP connection to (host, port) until it succeeds or
// startup.WaitTimeoutSecs elapses.
func (d *DataCluster) Start(ctx context.Context, init Initializer, startup buildopts.StartupParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Uninitialized {
		if init == nil {
			return errs.Validationf("cluster.start", d.cfg.UniqueID, "cluster is uninitialized and no initializer was supplied")
		}
		if err := init.Initialize(ctx, d.env, d.cfg); err != nil {
			return err
		}
		d.state = Initialized
	}

	if d.state != Initialized && d.state != Stopped {
		return errs.Validationf("cluster.start", d.cfg.UniqueID, "cannot start from state %s", d.state)
	}

	if err := d.env.Cluster.Start(ctx, d.cfg); err != nil {
		return err
	}
	d.state = Running

	if startup.Wait {
		if err := d.waitForListener(ctx, startup); err != nil {
			return err
		}
	}
	return nil
}

func (d *DataCluster) waitForListener(ctx context.Context, startup buildopts.StartupParameters) error {
	cfg := d.cfg.WithDefaults()
	timeout := 30 * time.Second
	if startup.WaitTimeoutSecs > 0 {
		timeout = time.Duration(startup.WaitTimeoutSecs) * time.Second
	}
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return errs.Execution("cluster.start", d.cfg.UniqueID, 0, fmt.Errorf("timed out waiting for %s to accept connections", addr))
		}
		select {
		case <-ctx.Done():
			return errs.Cancelled("cluster.start", d.cfg.UniqueID, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Stop brings the cluster down via pg_ctl stop.
func (d *DataCluster) Stop(ctx context.Context, shutdown buildopts.ShutdownParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Running {
		return errs.Validationf("cluster.stop", d.cfg.UniqueID, "cannot stop from state %s", d.state)
	}
	if err := d.env.Cluster.Stop(ctx, d.cfg, shutdown); err != nil {
		return err
	}
	d.state = Stopped
	return nil
}

// ReloadConfiguration invokes pg_ctl reload against a Running cluster.
func (d *DataCluster) ReloadConfiguration(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Running {
		return errs.Validationf("cluster.reloadConfiguration", d.cfg.UniqueID, "cannot reload from state %s", d.state)
	}
	return d.env.Cluster.ReloadConfiguration(ctx, d.cfg)
}

// Archive stops the cluster if Running, then compresses its data
// directory to archivePath without including the data directory itself
// as a root entry, so a later restore initializer can extract straight
// into a fresh data directory.
func (d *DataCluster) Archive(ctx context.Context, archivePath string, shutdown buildopts.ShutdownParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Running {
		if err := d.env.Cluster.Stop(ctx, d.cfg, shutdown); err != nil {
			return err
		}
		d.state = Stopped
	}
	if d.state != Stopped && d.state != Initialized {
		return errs.Validationf("cluster.archive", d.cfg.UniqueID, "cannot archive from state %s", d.state)
	}

	compressor := archive.NewSystem()
	dataDir := controller.DataFullPath(d.instCfg, d.cfg)
	return compressor.Compress(ctx, dataDir, archivePath, archive.CompressOptions{IncludeRoot: false})
}

// Destroy stops the cluster if running and deletes its data directory.
func (d *DataCluster) Destroy(ctx context.Context, shutdown buildopts.ShutdownParameters) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Destroyed {
		return nil
	}
	if err := d.env.Cluster.Destroy(ctx, d.cfg, shutdown); err != nil {
		return err
	}
	d.state = Destroyed
	return nil
}

// ListDatabases requires a Standard environment and a Running cluster.
func (d *DataCluster) ListDatabases(ctx context.Context, onRow controller.RowFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.env.Sql == nil {
		return errs.Capability("cluster.listDatabases", d.cfg.UniqueID, "psql")
	}
	if d.state != Running {
		return errs.Validationf("cluster.listDatabases", d.cfg.UniqueID, "cluster is %s, not running", d.state)
	}
	return d.env.Sql.ListDatabases(ctx, d.cfg, onRow)
}

// ExecuteSql requires a Standard environment and a Running cluster.
func (d *DataCluster) ExecuteSql(ctx context.Context, sql, db, user string, format buildopts.SqlOutputFormat, onOutput controller.RowLineFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.env.Sql == nil {
		return errs.Capability("cluster.executeSql", d.cfg.UniqueID, "psql")
	}
	if d.state != Running {
		return errs.Validationf("cluster.executeSql", d.cfg.UniqueID, "cluster is %s, not running", d.state)
	}
	return d.env.Sql.ExecuteSql(ctx, d.cfg, sql, db, user, format, onOutput)
}

// ExecuteFile requires a Standard environment and a Running cluster.
func (d *DataCluster) ExecuteFile(ctx context.Context, path, db, user string, format buildopts.SqlOutputFormat, onOutput controller.RowLineFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.env.Sql == nil {
		return errs.Capability("cluster.executeFile", d.cfg.UniqueID, "psql")
	}
	if d.state != Running {
		return errs.Validationf("cluster.executeFile", d.cfg.UniqueID, "cluster is %s, not running", d.state)
	}
	return d.env.Sql.ExecuteFile(ctx, d.cfg, path, db, user, format, onOutput)
}

// ExportDump requires a Standard environment and a Running cluster.
func (d *DataCluster) ExportDump(ctx context.Context, opts buildopts.DumpOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.env.Dump == nil {
		return errs.Capability("cluster.exportDump", d.cfg.UniqueID, "pg_dump")
	}
	if d.state != Running {
		return errs.Validationf("cluster.exportDump", d.cfg.UniqueID, "cluster is %s, not running", d.state)
	}
	return d.env.Dump.Dump(ctx, d.cfg, opts)
}

// ImportDump requires a Standard environment and a Running cluster.
func (d *DataCluster) ImportDump(ctx context.Context, opts buildopts.RestoreOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.env.Restore == nil {
		return errs.Capability("cluster.importDump", d.cfg.UniqueID, "pg_restore")
	}
	if d.state != Running {
		return errs.Validationf("cluster.importDump", d.cfg.UniqueID, "cluster is %s, not running", d.state)
	}
	return d.env.Restore.Restore(ctx, d.cfg, opts)
}
