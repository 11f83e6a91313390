package metadata

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save writes metadata to an arbitrary .meta.json path, for callers that
// don't want InstanceMetadata.Save's InstallPath-derived naming.
func Save(metaPath string, metadata *InstanceMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}
