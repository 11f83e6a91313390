package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"pgspin/internal/cpu"
)

// Config holds the process-wide defaults applied when a server, instance,
// or cluster configuration omits a field. CLI flags and programmatic
// ServerBuilderOptions override these, never the other way around.
type Config struct {
	// Version information
	Version   string
	BuildTime string
	GitCommit string

	// Environment defaults
	InstallRoot string // base directory for extracted instances, e.g. ~/.cache/pgspin
	RuntimeRoot string // base directory for per-cluster data/log directories
	CacheDir    string // downloaded artifact cache

	// Default server connection parameters, used when a cluster
	// configuration does not set them explicitly.
	DefaultHost     string
	DefaultPort     int
	DefaultUser     string
	DefaultDatabase string
	Locale          string

	// Concurrency
	MaxConcurrentOperations int
	AutoDetectCores         bool

	// CPU detection
	CPUDetector *cpu.Detector
	CPUInfo     *cpu.CPUInfo

	// Output options
	NoColor      bool
	Debug        bool
	LogLevel     string
	LogFormat    string
	OutputLength int
}

// New creates a new configuration with default values, reading overrides
// from the environment (PGSPIN_* variables, plus PGHOST/PGPORT/PGUSER/
// PGDATABASE for compatibility with the Postgres client tools this package drives).
func New() *Config {
	installRoot := getEnvString("PGSPIN_INSTALL_ROOT", getDefaultInstallRoot())
	runtimeRoot := getEnvString("PGSPIN_RUNTIME_ROOT", filepath.Join(installRoot, "clusters"))
	cacheDir := getEnvString("PGSPIN_CACHE_DIR", filepath.Join(installRoot, "cache"))

	cpuDetector := cpu.NewDetector()
	cpuInfo, _ := cpuDetector.DetectCPU()

	return &Config{
		InstallRoot: installRoot,
		RuntimeRoot: runtimeRoot,
		CacheDir:    cacheDir,

		DefaultHost:     getEnvString("PGHOST", "localhost"),
		DefaultPort:     getEnvInt("PGPORT", 5432),
		DefaultUser:     getEnvString("PGUSER", getCurrentUser()),
		DefaultDatabase: getEnvString("PGDATABASE", "postgres"),
		Locale:          getEnvString("PGSPIN_LOCALE", ""),

		MaxConcurrentOperations: getEnvInt("PGSPIN_MAX_CONCURRENCY", getDefaultConcurrency(cpuInfo)),
		AutoDetectCores:         getEnvBool("PGSPIN_AUTO_DETECT_CORES", true),

		CPUDetector: cpuDetector,
		CPUInfo:     cpuInfo,

		NoColor:      getEnvBool("NO_COLOR", false),
		Debug:        getEnvBool("PGSPIN_DEBUG", false),
		LogLevel:     getEnvString("PGSPIN_LOG_LEVEL", "info"),
		LogFormat:    getEnvString("PGSPIN_LOG_FORMAT", "text"),
		OutputLength: getEnvInt("PGSPIN_OUTPUT_LENGTH", 0),
	}
}

// UpdateFromEnvironment re-applies a handful of environment variables
// that are commonly exported mid-session (e.g. by a parent shell script
// wrapping this tool), without re-running cpu detection.
func (c *Config) UpdateFromEnvironment() {
	if host := os.Getenv("PGHOST"); host != "" {
		c.DefaultHost = host
	}
	if db := os.Getenv("PGDATABASE"); db != "" {
		c.DefaultDatabase = db
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DefaultPort < 1 || c.DefaultPort > 65535 {
		return &ConfigError{Field: "default-port", Value: strconv.Itoa(c.DefaultPort), Message: "must be between 1-65535"}
	}
	if c.MaxConcurrentOperations < 1 {
		return &ConfigError{Field: "max-concurrency", Value: strconv.Itoa(c.MaxConcurrentOperations), Message: "must be at least 1"}
	}
	if c.InstallRoot == "" {
		return &ConfigError{Field: "install-root", Value: "", Message: "must not be empty"}
	}
	return nil
}

// OptimizeForCPU adjusts MaxConcurrentOperations based on detected CPU,
// when AutoDetectCores is set.
func (c *Config) OptimizeForCPU() error {
	if c.CPUDetector == nil {
		c.CPUDetector = cpu.NewDetector()
	}
	if c.CPUInfo == nil {
		info, err := c.CPUDetector.DetectCPU()
		if err != nil {
			return err
		}
		c.CPUInfo = info
	}
	if c.AutoDetectCores {
		if jobs, err := c.CPUDetector.CalculateOptimalJobs("io-intensive", 0); err == nil {
			c.MaxConcurrentOperations = jobs
		}
	}
	return nil
}

// GetCPUInfo returns CPU information, detecting if necessary.
func (c *Config) GetCPUInfo() (*cpu.CPUInfo, error) {
	if c.CPUInfo != nil {
		return c.CPUInfo, nil
	}
	if c.CPUDetector == nil {
		c.CPUDetector = cpu.NewDetector()
	}
	info, err := c.CPUDetector.DetectCPU()
	if err != nil {
		return nil, err
	}
	c.CPUInfo = info
	return info, nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "' with value '" + e.Value + "': " + e.Message
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getCurrentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "postgres"
}

func getDefaultInstallRoot() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		return filepath.Join(homeDir, ".pgspin")
	}
	if runtime.GOOS == "windows" {
		return `C:\pgspin`
	}
	return "/tmp/pgspin"
}

func getDefaultConcurrency(cpuInfo *cpu.CPUInfo) int {
	if cpuInfo == nil {
		return 4
	}
	jobs := cpuInfo.LogicalCores
	if jobs < 1 {
		jobs = 1
	}
	if jobs > 16 {
		jobs = 16
	}
	return jobs
}
