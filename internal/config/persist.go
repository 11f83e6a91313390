package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const ConfigFileName = ".pgspin.conf"

// LocalConfig represents a saved configuration in the current directory.
type LocalConfig struct {
	InstallRoot string
	RuntimeRoot string
	CacheDir    string

	Host     string
	Port     int
	User     string
	Database string

	MaxConcurrency int
	CPUWorkload    string
}

// LoadLocalConfig loads configuration from .pgspin.conf in the current
// directory, using the same hand-rolled "[section]\nkey = value" format
// throughout this package.
func LoadLocalConfig() (*LocalConfig, error) {
	configPath := filepath.Join(".", ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &LocalConfig{}
	lines := strings.Split(string(data), "\n")
	currentSection := ""

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.Trim(line, "[]")
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch currentSection {
		case "paths":
			switch key {
			case "install_root":
				cfg.InstallRoot = value
			case "runtime_root":
				cfg.RuntimeRoot = value
			case "cache_dir":
				cfg.CacheDir = value
			}
		case "connection":
			switch key {
			case "host":
				cfg.Host = value
			case "port":
				if p, err := strconv.Atoi(value); err == nil {
					cfg.Port = p
				}
			case "user":
				cfg.User = value
			case "database":
				cfg.Database = value
			}
		case "performance":
			switch key {
			case "max_concurrency":
				if mc, err := strconv.Atoi(value); err == nil {
					cfg.MaxConcurrency = mc
				}
			case "cpu_workload":
				cfg.CPUWorkload = value
			}
		}
	}

	return cfg, nil
}

// SaveLocalConfig saves configuration to .pgspin.conf in the current
// directory.
func SaveLocalConfig(cfg *LocalConfig) error {
	var sb strings.Builder

	sb.WriteString("# pgspin configuration\n")
	sb.WriteString("# This file is auto-generated. Edit with care.\n\n")

	sb.WriteString("[paths]\n")
	if cfg.InstallRoot != "" {
		sb.WriteString(fmt.Sprintf("install_root = %s\n", cfg.InstallRoot))
	}
	if cfg.RuntimeRoot != "" {
		sb.WriteString(fmt.Sprintf("runtime_root = %s\n", cfg.RuntimeRoot))
	}
	if cfg.CacheDir != "" {
		sb.WriteString(fmt.Sprintf("cache_dir = %s\n", cfg.CacheDir))
	}
	sb.WriteString("\n[connection]\n")
	if cfg.Host != "" {
		sb.WriteString(fmt.Sprintf("host = %s\n", cfg.Host))
	}
	if cfg.Port != 0 {
		sb.WriteString(fmt.Sprintf("port = %d\n", cfg.Port))
	}
	if cfg.User != "" {
		sb.WriteString(fmt.Sprintf("user = %s\n", cfg.User))
	}
	if cfg.Database != "" {
		sb.WriteString(fmt.Sprintf("database = %s\n", cfg.Database))
	}
	sb.WriteString("\n[performance]\n")
	if cfg.MaxConcurrency != 0 {
		sb.WriteString(fmt.Sprintf("max_concurrency = %d\n", cfg.MaxConcurrency))
	}
	if cfg.CPUWorkload != "" {
		sb.WriteString(fmt.Sprintf("cpu_workload = %s\n", cfg.CPUWorkload))
	}

	configPath := filepath.Join(".", ConfigFileName)
	if err := os.WriteFile(configPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyLocalConfig applies loaded local config to the main config. Host
// and port are applied only while still at their defaults (localhost,
// 5432); every other non-empty field of local overwrites cfg.
func ApplyLocalConfig(cfg *Config, local *LocalConfig) {
	if local == nil {
		return
	}
	if local.InstallRoot != "" {
		cfg.InstallRoot = local.InstallRoot
	}
	if local.RuntimeRoot != "" {
		cfg.RuntimeRoot = local.RuntimeRoot
	}
	if local.CacheDir != "" {
		cfg.CacheDir = local.CacheDir
	}
	if cfg.DefaultHost == "localhost" && local.Host != "" {
		cfg.DefaultHost = local.Host
	}
	if cfg.DefaultPort == 5432 && local.Port != 0 {
		cfg.DefaultPort = local.Port
	}
	if local.User != "" {
		cfg.DefaultUser = local.User
	}
	if local.Database != "" {
		cfg.DefaultDatabase = local.Database
	}
	if local.MaxConcurrency != 0 {
		cfg.MaxConcurrentOperations = local.MaxConcurrency
	}
}

// ConfigFromConfig creates a LocalConfig from a Config, for SaveLocalConfig.
func ConfigFromConfig(cfg *Config) *LocalConfig {
	return &LocalConfig{
		InstallRoot:    cfg.InstallRoot,
		RuntimeRoot:    cfg.RuntimeRoot,
		CacheDir:       cfg.CacheDir,
		Host:           cfg.DefaultHost,
		Port:           cfg.DefaultPort,
		User:           cfg.DefaultUser,
		Database:       cfg.DefaultDatabase,
		MaxConcurrency: cfg.MaxConcurrentOperations,
	}
}
