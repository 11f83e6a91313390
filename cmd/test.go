package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"pgspin/internal/buildopts"
	"pgspin/internal/cluster"
	"pgspin/internal/environment"
	"pgspin/internal/initializer"
	"pgspin/internal/procexec"
	"pgspin/internal/progress"

	"github.com/spf13/cobra"
)

var testClusterID string
var testPort int

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Smoke-test the instance: initialize, start, run a query, stop",
	Long: `Runs a disposable cluster through its full lifecycle against the
configured instance directory: initialize a scratch data directory,
start it, wait for it to accept connections, run "SELECT 1" through
psql, then stop and destroy it. Exits non-zero on the first failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTest(cmd.Context())
	},
}

func init() {
	testCmd.Flags().StringVar(&testClusterID, "cluster-id", "pgspin-smoketest", "scratch cluster unique id")
	testCmd.Flags().IntVar(&testPort, "port", 0, "scratch cluster port (0 picks 55432)")
}

func runTest(ctx context.Context) error {
	if testPort == 0 {
		testPort = 55432
	}

	instCfg := instanceConfiguration()
	exec := procexec.New(log)
	envBuilder := environment.New(exec, log, auditLogger, cfg.MaxConcurrentOperations)
	env, err := envBuilder.Build(ctx, instCfg)
	if err != nil {
		return fmt.Errorf("test: building environment: %w", err)
	}

	dataDir := fmt.Sprintf("smoketest-%s", testClusterID)
	dc := cluster.New(env, instCfg, buildopts.DataClusterConfiguration{
		UniqueID:      testClusterID,
		DataDirectory: dataDir,
		Host:          cfg.DefaultHost,
		Port:          testPort,
	})
	defer func() {
		_ = dc.Destroy(context.Background(), buildopts.DefaultShutdownParameters())
	}()

	indicator := progress.NewIndicator(!cfg.NoColor, "spinner")

	indicator.Start("Initializing scratch cluster...")
	init := initializer.InitDb{}
	if err := dc.Initialize(ctx, init, false); err != nil {
		indicator.Fail(err.Error())
		return fmt.Errorf("test: initialize: %w", err)
	}
	indicator.Complete("Scratch cluster initialized")

	indicator.Start("Starting scratch cluster...")
	start := time.Now()
	if err := dc.Start(ctx, init, buildopts.DefaultStartupParameters()); err != nil {
		indicator.Fail(err.Error())
		return fmt.Errorf("test: start: %w", err)
	}
	indicator.Complete(fmt.Sprintf("Scratch cluster accepting connections after %s", time.Since(start).Round(time.Millisecond)))

	var result string
	onOutput := func(line string) {
		if result == "" {
			result = line
		}
	}
	if err := dc.ExecuteSql(ctx, "SELECT 1", cfg.DefaultDatabase, cfg.DefaultUser, buildopts.SqlOutputFormat{TuplesOnly: true}, onOutput); err != nil {
		return fmt.Errorf("test: query: %w", err)
	}
	fmt.Fprintln(os.Stdout, "Query result:", result)

	if err := dc.Stop(ctx, buildopts.DefaultShutdownParameters()); err != nil {
		return fmt.Errorf("test: stop: %w", err)
	}

	fmt.Println("Smoke test passed.")
	return nil
}
