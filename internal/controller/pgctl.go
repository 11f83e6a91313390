package controller

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pgspin/internal/buildopts"
	"pgspin/internal/errs"
	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// DataClusterController wraps pg_ctl.
type DataClusterController struct {
	base
}

// NewDataCluster constructs a DataClusterController bound to binaryPath.
func NewDataCluster(binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor) *DataClusterController {
	return &DataClusterController{base: newBase(KindCluster, binaryPath, instCfg, exec)}
}

// Status describes the result of a status probe: either a valid,
// parsed postmaster.pid, or an invalid probe with the exit code pg_ctl
// status returned.
type Status struct {
	Valid       bool
	Pid         int
	DataDir     string
	StartTime   int64
	Port        int
	Host        string
	StatusError int
}

// GetStatus probes a cluster's running state without throwing on a
// non-zero exit: pg_ctl status itself uses its exit code to signal "not
// running", which is expected, ordinary control flow here.
func (c *DataClusterController) GetStatus(ctx context.Context, cluster buildopts.DataClusterConfiguration) (Status, error) {
	dataDir := DataFullPath(c.instCfg, cluster)
	result, err := c.exec.Execute(ctx, c.binaryPath, []string{"status", "-D", dataDir}, procexec.Options{NoThrow: true})
	if err != nil {
		return Status{}, errs.IO("cluster.getStatus", dataDir, err)
	}
	if result.ExitCode != 0 {
		return Status{Valid: false, StatusError: result.ExitCode}, nil
	}

	pidPath := filepath.Join(dataDir, "postmaster.pid")
	if c.fs.ProbePath(pidPath) != fsutil.File {
		return Status{Valid: false, StatusError: result.ExitCode}, nil
	}

	return parsePostmasterPid(pidPath)
}

// parsePostmasterPid reads the first five lines of postmaster.pid: pid,
// data directory, start time, port, host. Lines after line 5 vary by
// engine version and are ignored.
func parsePostmasterPid(path string) (Status, error) {
	f, err := os.Open(path)
	if err != nil {
		return Status{}, errs.IO("cluster.getStatus", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 5 {
		lines = append(lines, scanner.Text())
	}
	if len(lines) < 5 {
		return Status{}, errs.Validationf("cluster.getStatus", path, "postmaster.pid has %d lines, want at least 5", len(lines))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Status{}, errs.Validation("cluster.getStatus", path, fmt.Errorf("parse pid: %w", err))
	}
	startTime, err := strconv.ParseInt(strings.TrimSpace(lines[2]), 10, 64)
	if err != nil {
		return Status{}, errs.Validation("cluster.getStatus", path, fmt.Errorf("parse start time: %w", err))
	}
	port, err := strconv.Atoi(strings.TrimSpace(lines[3]))
	if err != nil {
		return Status{}, errs.Validation("cluster.getStatus", path, fmt.Errorf("parse port: %w", err))
	}

	return Status{
		Valid:     true,
		Pid:       pid,
		DataDir:   lines[1],
		StartTime: startTime,
		Port:      port,
		Host:      lines[4],
	}, nil
}

// Start invokes pg_ctl start without capturing output: postmaster forks
// a detached child that can keep an inherited pipe open indefinitely, so
// this call must never attach an output listener.
func (c *DataClusterController) Start(ctx context.Context, cluster buildopts.DataClusterConfiguration) error {
	cluster = cluster.WithDefaults()
	postgresOpts := fmt.Sprintf("-F -p %d", cluster.Port)
	for _, kv := range cluster.Parameters {
		postgresOpts += fmt.Sprintf(" -c %s=%s", kv.Key, kv.Value)
	}

	args := []string{
		"start",
		"-U", cluster.Superuser,
		"-D", DataFullPath(c.instCfg, cluster),
		"-o", postgresOpts,
	}
	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{})
	if err != nil {
		return errs.Execution("cluster.start", cluster.UniqueID, 0, err)
	}
	return nil
}

// Stop invokes pg_ctl stop with shutdown's mode, wait behavior, and timeout.
func (c *DataClusterController) Stop(ctx context.Context, cluster buildopts.DataClusterConfiguration, shutdown buildopts.ShutdownParameters) error {
	args := c.shutdownArgs("stop", cluster, shutdown)
	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{})
	if err != nil {
		return errs.Execution("cluster.stop", cluster.UniqueID, 0, err)
	}
	return nil
}

// Restart invokes pg_ctl restart with shutdown's mode, wait behavior, and timeout.
func (c *DataClusterController) Restart(ctx context.Context, cluster buildopts.DataClusterConfiguration, shutdown buildopts.ShutdownParameters) error {
	args := c.shutdownArgs("restart", cluster, shutdown)
	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{})
	if err != nil {
		return errs.Execution("cluster.restart", cluster.UniqueID, 0, err)
	}
	return nil
}

func (c *DataClusterController) shutdownArgs(subcommand string, cluster buildopts.DataClusterConfiguration, shutdown buildopts.ShutdownParameters) []string {
	cluster = cluster.WithDefaults()
	mode := shutdown.Mode
	if mode == "" {
		mode = buildopts.ShutdownFast
	}
	args := []string{
		subcommand,
		"-U", cluster.Superuser,
		"-D", DataFullPath(c.instCfg, cluster),
		"-m", string(mode),
	}
	if shutdown.Wait {
		args = append(args, "--wait")
	} else {
		args = append(args, "--no-wait")
	}
	if shutdown.TimeoutSecs > 0 {
		args = append(args, "-t", strconv.Itoa(shutdown.TimeoutSecs))
	}
	return args
}

// ReloadConfiguration invokes pg_ctl reload.
func (c *DataClusterController) ReloadConfiguration(ctx context.Context, cluster buildopts.DataClusterConfiguration) error {
	args := []string{"reload", "-U", cluster.WithDefaults().Superuser, "-D", DataFullPath(c.instCfg, cluster)}
	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{})
	if err != nil {
		return errs.Execution("cluster.reloadConfiguration", cluster.UniqueID, 0, err)
	}
	return nil
}

// Destroy stops cluster if running, then deletes its data directory.
func (c *DataClusterController) Destroy(ctx context.Context, cluster buildopts.DataClusterConfiguration, shutdown buildopts.ShutdownParameters) error {
	status, err := c.GetStatus(ctx, cluster)
	if err != nil {
		return err
	}
	if status.Valid {
		if err := c.Stop(ctx, cluster, shutdown); err != nil {
			return err
		}
	}

	dataDir := DataFullPath(c.instCfg, cluster)
	if c.fs.ProbePath(dataDir) == fsutil.DoesNotExist {
		return nil
	}
	if err := c.fs.DeleteDirectory(dataDir); err != nil {
		return errs.IO("cluster.destroy", dataDir, err)
	}
	return nil
}
