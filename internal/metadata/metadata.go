// Package metadata records provenance for built instances: which
// artifacts were fetched, their checksums, and when the instance was
// assembled, written alongside the instance directory as a .meta.json
// sidecar so a later run can tell whether the cached install is stale.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ArtifactMetadata records where a single extracted artifact came from.
type ArtifactMetadata struct {
	Source    string `json:"source"` // local path, URL, or cloud URI
	Kind      string `json:"kind"`   // "main" or "extension"
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// InstanceMetadata contains comprehensive information about a built
// instance directory.
type InstanceMetadata struct {
	Version         string             `json:"version"`
	Timestamp       time.Time          `json:"timestamp"`
	InstallPath     string             `json:"install_path"`
	PostgresVersion string             `json:"postgres_version,omitempty"`
	Artifacts       []ArtifactMetadata `json:"artifacts"`
	Duration        float64            `json:"duration_seconds"`
	ExtraInfo       map[string]string  `json:"extra_info,omitempty"`
}

// CalculateSHA256 computes the SHA-256 checksum of a file.
func CalculateSHA256(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Save writes metadata to a .meta.json file alongside InstallPath.
func (m *InstanceMetadata) Save() error {
	metaPath := m.InstallPath + ".meta.json"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads instance metadata for installPath.
func Load(installPath string) (*InstanceMetadata, error) {
	metaPath := installPath + ".meta.json"

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta InstanceMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

// ListInstances scans a directory for instance metadata sidecars.
func ListInstances(dir string) ([]*InstanceMetadata, error) {
	pattern := filepath.Join(dir, "*.meta.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var instances []*InstanceMetadata
	for _, metaFile := range matches {
		installPath := metaFile[:len(metaFile)-len(".meta.json")]

		meta, err := Load(installPath)
		if err != nil {
			continue
		}

		instances = append(instances, meta)
	}

	return instances, nil
}

// FormatSize returns a human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
