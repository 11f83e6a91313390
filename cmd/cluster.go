package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"pgspin/internal/buildopts"
	"pgspin/internal/environment"
	"pgspin/internal/initializer"
	"pgspin/internal/procexec"
	"pgspin/internal/server"
	"pgspin/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage PostgreSQL data clusters hosted by the instance",
}

var (
	clusterFlags       []string
	clusterParallelism int
	clusterForceReInit bool
	clusterStartWait   bool
	clusterStopMode    string
)

var clusterStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Initialize (if needed) and start one or more clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClusterFanOut(cmd.Context(), "start", func(ctx context.Context, s *server.Server, opts server.FanOutOptions) error {
			return s.Start(ctx, initializer.InitDb{ForceReInitialization: clusterForceReInit}, buildopts.StartupParameters{
				Wait:            clusterStartWait,
				WaitTimeoutSecs: 30,
			}, opts)
		})
	},
}

var clusterStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop one or more running clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := buildopts.ShutdownMode(clusterStopMode)
		if mode == "" {
			mode = buildopts.ShutdownFast
		}
		return runClusterFanOut(cmd.Context(), "stop", func(ctx context.Context, s *server.Server, opts server.FanOutOptions) error {
			return s.Stop(ctx, buildopts.ShutdownParameters{Mode: mode, Wait: true, TimeoutSecs: 180}, opts)
		})
	},
}

var clusterReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration on one or more running clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClusterFanOut(cmd.Context(), "reload", func(ctx context.Context, s *server.Server, opts server.FanOutOptions) error {
			return s.ReloadConfiguration(ctx, opts)
		})
	},
}

var clusterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe and print the lifecycle state of one or more clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClusterStatus(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{clusterStartCmd, clusterStopCmd, clusterReloadCmd, clusterStatusCmd} {
		c.Flags().StringArrayVar(&clusterFlags, "cluster", nil, "cluster to target, uniqueId:host:port (repeatable; at least one is required)")
		c.Flags().IntVar(&clusterParallelism, "parallel", 4, "maximum concurrent per-cluster operations")
	}
	clusterStartCmd.Flags().BoolVar(&clusterForceReInit, "force-reinit", false, "reinitialize the data directory even if already initialized")
	clusterStartCmd.Flags().BoolVar(&clusterStartWait, "wait", true, "wait for the cluster to accept connections before returning")
	clusterStopCmd.Flags().StringVar(&clusterStopMode, "mode", string(buildopts.ShutdownFast), "shutdown mode: smart, fast, or immediate")

	clusterCmd.AddCommand(clusterStartCmd)
	clusterCmd.AddCommand(clusterStopCmd)
	clusterCmd.AddCommand(clusterReloadCmd)
	clusterCmd.AddCommand(clusterStatusCmd)
}

// parseClusterFlag turns "uniqueId:host:port" into a DataClusterConfiguration.
func parseClusterFlag(raw string) (buildopts.DataClusterConfiguration, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return buildopts.DataClusterConfiguration{}, fmt.Errorf("invalid --cluster %q, want uniqueId:host:port", raw)
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil {
		return buildopts.DataClusterConfiguration{}, fmt.Errorf("invalid --cluster %q: bad port: %w", raw, err)
	}
	return buildopts.DataClusterConfiguration{
		UniqueID: parts[0],
		Host:     parts[1],
		Port:     port,
	}, nil
}

func buildServer(ctx context.Context) (*server.Server, error) {
	if len(clusterFlags) == 0 {
		return nil, fmt.Errorf("at least one --cluster uniqueId:host:port is required")
	}

	instCfg := instanceConfiguration()
	exec := procexec.New(log)
	envBuilder := environment.New(exec, log, auditLogger, cfg.MaxConcurrentOperations)
	env, err := envBuilder.Build(ctx, instCfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: building environment: %w", err)
	}

	s := server.New(env, log)
	for _, raw := range clusterFlags {
		dc, err := parseClusterFlag(raw)
		if err != nil {
			return nil, err
		}
		s.AddCluster(dc)
	}
	return s, nil
}

func runClusterFanOut(ctx context.Context, operation string, run func(ctx context.Context, s *server.Server, opts server.FanOutOptions) error) error {
	s, err := buildServer(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	var failures atomic.Int64

	if !cfg.NoColor {
		return runClusterFanOutTUI(ctx, s, operation, run, &failures, start)
	}

	opts := server.FanOutOptions{
		MaxDegreeOfParallelism: clusterParallelism,
		OnEvent: func(e server.Event, cancel context.CancelFunc) {
			if e.ErrorInfo != nil {
				failures.Add(1)
				fmt.Printf("  %-20s FAILED: %v\n", e.ClusterID, e.ErrorInfo)
			} else {
				fmt.Printf("  %-20s ok\n", e.ClusterID)
			}
		},
	}

	err = run(ctx, s, opts)
	recordInstanceOperation("cluster."+operation, start, err == nil)
	if err != nil {
		return fmt.Errorf("cluster %s: %d cluster(s) failed (%w)", operation, failures.Load(), err)
	}
	return nil
}

// runClusterFanOutTUI drives the same fan-out through a live
// bubbletea dashboard instead of line-by-line printf output: the
// operation runs on a separate goroutine while the dashboard runs on
// this one, feeding each cluster's Event to the dashboard over a
// channel that is closed once every cluster has reported.
func runClusterFanOutTUI(ctx context.Context, s *server.Server, operation string, run func(ctx context.Context, s *server.Server, opts server.FanOutOptions) error, failures *atomic.Int64, start time.Time) error {
	clusterIDs := make([]string, 0, len(clusterFlags))
	for _, raw := range clusterFlags {
		if dc, err := parseClusterFlag(raw); err == nil {
			clusterIDs = append(clusterIDs, dc.UniqueID)
		}
	}

	events := make(chan tui.ClusterEvent, len(clusterIDs))
	model := tui.NewFanOutModel(operation, clusterIDs, events)
	program := tea.NewProgram(model)

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		opts := server.FanOutOptions{
			MaxDegreeOfParallelism: clusterParallelism,
			OnEvent: func(e server.Event, cancel context.CancelFunc) {
				if e.ErrorInfo != nil {
					failures.Add(1)
				}
				events <- tui.ClusterEvent{ClusterID: e.ClusterID, Err: e.ErrorInfo}
			},
		}
		runErr = run(ctx, s, opts)
		close(events)
	}()

	if _, err := program.Run(); err != nil {
		<-done
		return fmt.Errorf("cluster %s: dashboard: %w", operation, err)
	}
	<-done

	recordInstanceOperation("cluster."+operation, start, runErr == nil)
	if runErr != nil {
		return fmt.Errorf("cluster %s: %d cluster(s) failed (%w)", operation, failures.Load(), runErr)
	}
	return nil
}

func runClusterStatus(ctx context.Context) error {
	s, err := buildServer(ctx)
	if err != nil {
		return err
	}

	for _, dc := range s.ListClusters() {
		if err := dc.Probe(ctx); err != nil {
			fmt.Printf("  %-20s error: %v\n", dc.ID(), err)
			continue
		}
		fmt.Printf("  %-20s %s\n", dc.ID(), dc.State())
	}
	return nil
}
