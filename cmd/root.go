package cmd

import (
	"context"
	"fmt"

	"pgspin/internal/config"
	"pgspin/internal/logger"
	"pgspin/internal/metrics"
	"pgspin/internal/security"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfg              *config.Config
	log              logger.Logger
	auditLogger      *security.AuditLogger
	metricsCollector *metrics.MetricsCollector
)

var noLoadConfig bool
var noSaveConfig bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pgspin",
	Short: "Embed and orchestrate PostgreSQL clusters",
	Long: `pgspin builds self-contained PostgreSQL instance directories from
downloaded binary bundles, and manages the lifecycle of one or more data
clusters hosted under them.

Features:
- Artifact acquisition from local files, HTTP(S), or cloud storage (S3,
  Azure, GCS)
- System, Sharp, and Zonky archive extraction strategies
- initdb/pg_ctl/psql/pg_dump/pg_restore controllers with fixed,
  reproducible argument ordering
- Bounded-parallelism fan-out across multiple clusters
- Structured logging, Prometheus metrics, and an audit trail

For help with specific commands, use: pgspin [command] --help`,
	Version: "",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return nil
		}

		flagsSet := make(map[string]bool)
		cmd.Flags().Visit(func(f *pflag.Flag) {
			flagsSet[f.Name] = true
		})

		if !noLoadConfig {
			if localCfg, err := config.LoadLocalConfig(); err != nil {
				log.Warn("Failed to load local config", "error", err)
			} else if localCfg != nil {
				savedInstallRoot := cfg.InstallRoot
				savedRuntimeRoot := cfg.RuntimeRoot
				savedCacheDir := cfg.CacheDir
				savedHost := cfg.DefaultHost
				savedPort := cfg.DefaultPort
				savedUser := cfg.DefaultUser
				savedDatabase := cfg.DefaultDatabase
				savedMaxConcurrency := cfg.MaxConcurrentOperations

				config.ApplyLocalConfig(cfg, localCfg)
				log.Info("Loaded configuration from .pgspin.conf")

				if flagsSet["install-root"] {
					cfg.InstallRoot = savedInstallRoot
				}
				if flagsSet["runtime-root"] {
					cfg.RuntimeRoot = savedRuntimeRoot
				}
				if flagsSet["cache-dir"] {
					cfg.CacheDir = savedCacheDir
				}
				if flagsSet["host"] {
					cfg.DefaultHost = savedHost
				}
				if flagsSet["port"] {
					cfg.DefaultPort = savedPort
				}
				if flagsSet["user"] {
					cfg.DefaultUser = savedUser
				}
				if flagsSet["database"] {
					cfg.DefaultDatabase = savedDatabase
				}
				if flagsSet["max-concurrency"] {
					cfg.MaxConcurrentOperations = savedMaxConcurrency
				}
			}
		}

		return cfg.Validate()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if noSaveConfig || cfg == nil {
			return nil
		}
		if err := config.SaveLocalConfig(config.ConfigFromConfig(cfg)); err != nil {
			log.Warn("Failed to save local config", "error", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute(ctx context.Context, config *config.Config, logger logger.Logger) error {
	cfg = config
	log = logger

	auditLogger = security.NewAuditLogger(logger, true)
	if metrics.GlobalMetrics == nil {
		metrics.InitGlobalMetrics(logger)
	}
	metricsCollector = metrics.GlobalMetrics

	rootCmd.Version = fmt.Sprintf("%s (built: %s, commit: %s)", cfg.Version, cfg.BuildTime, cfg.GitCommit)

	rootCmd.PersistentFlags().StringVar(&cfg.InstallRoot, "install-root", cfg.InstallRoot, "Instance install root directory")
	rootCmd.PersistentFlags().StringVar(&cfg.RuntimeRoot, "runtime-root", cfg.RuntimeRoot, "Cluster data/log root directory")
	rootCmd.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Downloaded artifact cache directory")
	rootCmd.PersistentFlags().StringVar(&cfg.DefaultHost, "host", cfg.DefaultHost, "Default cluster host")
	rootCmd.PersistentFlags().IntVar(&cfg.DefaultPort, "port", cfg.DefaultPort, "Default cluster port")
	rootCmd.PersistentFlags().StringVar(&cfg.DefaultUser, "user", cfg.DefaultUser, "Default superuser name")
	rootCmd.PersistentFlags().StringVar(&cfg.DefaultDatabase, "database", cfg.DefaultDatabase, "Default database name")
	rootCmd.PersistentFlags().BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxConcurrentOperations, "max-concurrency", cfg.MaxConcurrentOperations, "Maximum concurrent artifact downloads and extension extractions")
	rootCmd.PersistentFlags().BoolVar(&cfg.AutoDetectCores, "auto-detect-cores", cfg.AutoDetectCores, "Auto-detect CPU cores for concurrency defaults")
	rootCmd.PersistentFlags().BoolVar(&noSaveConfig, "no-save-config", false, "Don't save configuration after successful operations")
	rootCmd.PersistentFlags().BoolVar(&noLoadConfig, "no-config", false, "Don't load configuration from .pgspin.conf")

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(testCmd)
}
