package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"pgspin/internal/artifact"
	"pgspin/internal/buildopts"
	"pgspin/internal/environment"
	"pgspin/internal/fetch"
	"pgspin/internal/instance"
	"pgspin/internal/metadata"
	"pgspin/internal/procexec"
	"pgspin/internal/progress"
	"pgspin/internal/security"

	"github.com/spf13/cobra"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage a pgspin instance directory",
	Long:  `Check, build, and destroy the instance directory an instance's clusters run from.`,
}

var (
	instanceArtifactFlags  []string
	instanceCleanInstall   bool
	instanceExcludePgAdmin bool
	instanceTarPath        string
	instanceStrategyFlag   string
)

var instanceCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the instance directory's required binaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstanceCheck(cmd.Context())
	},
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Build an instance directory from one or more artifacts",
	Long: `Build an instance directory from one or more artifacts.

Each --artifact value has the form [kind:]source, where kind is "main"
(the default, exactly one required) or "extension", and source is a
local path, an HTTP(S) URL, or a cloud storage URI (s3://, azure://,
gs://, minio://, b2://).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstanceCreate(cmd.Context())
	},
}

var instanceDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Remove the instance directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstanceDestroy(cmd.Context())
	},
}

func init() {
	instanceCreateCmd.Flags().StringArrayVar(&instanceArtifactFlags, "artifact", nil, "artifact to build the instance from, [kind:]source (repeatable)")
	instanceCreateCmd.Flags().BoolVar(&instanceCleanInstall, "clean", false, "delete the instance directory before building")
	instanceCreateCmd.Flags().BoolVar(&instanceExcludePgAdmin, "exclude-pgadmin", true, "drop the bundled pgAdmin tree from the main artifact")
	instanceCreateCmd.Flags().StringVar(&instanceTarPath, "tar-path", "tar", "external tar binary for Sharp-strategy archives (defaults to $PATH lookup)")
	instanceCreateCmd.Flags().StringVar(&instanceStrategyFlag, "strategy", "", "force an extraction strategy for every --artifact (system|sharp|zonky; default: sniff by extension, falling back to sharp)")

	instanceCmd.AddCommand(instanceCheckCmd)
	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceDestroyCmd)
}

func instanceConfiguration() buildopts.InstanceConfiguration {
	return buildopts.InstanceConfiguration{
		InstanceDirectory: cfg.InstallRoot,
		CleanInstall:      instanceCleanInstall,
		ExcludePgAdmin:    instanceExcludePgAdmin,
		PlatformParameters: buildopts.PlatformParameters{
			NormalizeAttributes:     true,
			SetExecutableAttributes: true,
		},
	}
}

func parseArtifactFlag(raw string) (buildopts.Artifact, error) {
	kind := buildopts.KindMain
	source := raw
	if idx := strings.Index(raw, ":"); idx > 0 {
		switch raw[:idx] {
		case "main":
			kind = buildopts.KindMain
			source = raw[idx+1:]
		case "extension":
			kind = buildopts.KindExtension
			source = raw[idx+1:]
		}
	}
	if source == "" {
		return buildopts.Artifact{}, fmt.Errorf("empty artifact source in %q", raw)
	}
	return buildopts.Artifact{
		Kind:               kind,
		Source:             source,
		TargetDirectory:    cfg.CacheDir,
		ExtractionStrategy: buildopts.ExtractionStrategy(instanceStrategyFlag),
	}, nil
}

func runInstanceCheck(ctx context.Context) error {
	instCfg := instanceConfiguration()
	exec := procexec.New(log)
	builder := environment.New(exec, log, auditLogger, cfg.MaxConcurrentOperations)

	versions, err := builder.Validate(ctx, instCfg)
	if err != nil {
		return fmt.Errorf("instance check failed: %w", err)
	}

	fmt.Println("Instance directory:", instCfg.InstanceDirectory)
	for name, version := range versions {
		fmt.Printf("  %-12s %s\n", name, version)
	}
	return nil
}

func runInstanceCreate(ctx context.Context) error {
	if len(instanceArtifactFlags) == 0 {
		return fmt.Errorf("at least one --artifact is required (exactly one must be the main bundle)")
	}

	artifacts := make([]buildopts.Artifact, 0, len(instanceArtifactFlags))
	for _, raw := range instanceArtifactFlags {
		a, err := parseArtifactFlag(raw)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, a)
	}
	if err := buildopts.ValidateArtifacts(artifacts); err != nil {
		return err
	}

	var totalArtifactBytes int64
	for _, a := range artifacts {
		if a.IsLocal() {
			if info, err := os.Stat(a.Source); err == nil {
				totalArtifactBytes += info.Size()
			}
		}
	}
	eta := progress.NewETAEstimator("instance.create", len(artifacts))
	estimatedDuration := progress.EstimateSizeBasedDuration(totalArtifactBytes, cfg.MaxConcurrentOperations)

	indicator := progress.NewIndicator(!cfg.NoColor, "spinner")
	indicator.Start(fmt.Sprintf("Building instance at %s (estimated %s)...", cfg.InstallRoot, progress.FormatDuration(estimatedDuration)))

	downloader := fetch.New(&http.Client{Timeout: 5 * time.Minute}, log, fetch.DefaultRetryPolicy())
	artifactBuilder := artifact.New(downloader, cloudCredentialsFromEnv(), cfg.MaxConcurrentOperations)
	instanceBuilder := instance.New(artifactBuilder, procexec.New(log), log, instanceTarPath, cfg.MaxConcurrentOperations)

	instCfg := instanceConfiguration()
	start := time.Now()
	if err := instanceBuilder.Build(ctx, instCfg, artifacts); err != nil {
		indicator.Fail(err.Error())
		recordInstanceOperation("instance.create", start, false)
		return err
	}
	duration := time.Since(start)
	eta.UpdateProgress(len(artifacts))

	if err := writeInstanceMetadata(instCfg, artifacts, duration); err != nil {
		log.Warn("Failed to write instance metadata", "error", err)
	}

	indicator.Complete(fmt.Sprintf("Instance built in %s", duration.Round(time.Millisecond)))
	recordInstanceOperation("instance.create", start, true)
	auditLogger.LogClusterInitComplete(security.GetCurrentUser(), "instance", instCfg.InstanceDirectory)
	return nil
}

func runInstanceDestroy(ctx context.Context) error {
	instCfg := instanceConfiguration()

	downloader := fetch.New(&http.Client{Timeout: 5 * time.Minute}, log, fetch.DefaultRetryPolicy())
	artifactBuilder := artifact.New(downloader, cloudCredentialsFromEnv(), cfg.MaxConcurrentOperations)
	instanceBuilder := instance.New(artifactBuilder, procexec.New(log), log, instanceTarPath, cfg.MaxConcurrentOperations)

	start := time.Now()
	if err := instanceBuilder.Destroy(instCfg); err != nil {
		recordInstanceOperation("instance.destroy", start, false)
		return err
	}
	if err := os.Remove(instCfg.InstanceDirectory + ".meta.json"); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove instance metadata sidecar", "error", err)
	}
	recordInstanceOperation("instance.destroy", start, true)
	fmt.Println("Instance destroyed:", instCfg.InstanceDirectory)
	return nil
}

func writeInstanceMetadata(instCfg buildopts.InstanceConfiguration, artifacts []buildopts.Artifact, duration time.Duration) error {
	meta := &metadata.InstanceMetadata{
		Version:     cfg.Version,
		Timestamp:   time.Now(),
		InstallPath: instCfg.InstanceDirectory,
		Duration:    duration.Seconds(),
	}
	for _, a := range artifacts {
		am := metadata.ArtifactMetadata{Source: a.Source, Kind: a.Kind.String()}
		if a.IsLocal() {
			if sum, err := metadata.CalculateSHA256(a.Source); err == nil {
				am.SHA256 = sum
			}
			if info, err := os.Stat(a.Source); err == nil {
				am.SizeBytes = info.Size()
			}
		}
		meta.Artifacts = append(meta.Artifacts, am)
	}
	return meta.Save()
}

func recordInstanceOperation(op string, start time.Time, success bool) {
	if metricsCollector != nil {
		errCount := 0
		if !success {
			errCount = 1
		}
		metricsCollector.RecordOperation(op, "instance", start, 0, success, errCount)
	}
}

func cloudCredentialsFromEnv() map[string]artifact.CloudCredentials {
	creds := map[string]artifact.CloudCredentials{}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		creds["s3"] = artifact.CloudCredentials{
			AccessKey: key,
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:  os.Getenv("AWS_ENDPOINT_URL"),
		}
	}
	if account := os.Getenv("AZURE_STORAGE_ACCOUNT"); account != "" {
		creds["azure"] = artifact.CloudCredentials{
			AccessKey: account,
			SecretKey: os.Getenv("AZURE_STORAGE_KEY"),
			Endpoint:  os.Getenv("AZURE_STORAGE_ENDPOINT"),
		}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		creds["gs"] = artifact.CloudCredentials{AccessKey: credFile}
	}
	return creds
}
