// Package checks implements preconditions an instance build checks
// before doing the expensive part: disk space headroom before
// extraction, and pattern-based classification of a failed command's
// stderr, grounded on the teacher's internal/checks package of the same
// shape (re-pointed here from backup/restore sizing to archive
// extraction sizing).
package checks

import "fmt"

// DiskSpaceCheck reports the free space at a path against the threshold
// an operation needs.
type DiskSpaceCheck struct {
	Path           string
	TotalBytes     uint64
	AvailableBytes uint64
	UsedBytes      uint64
	UsedPercent    float64
	Sufficient     bool
	Warning        bool
	Critical       bool
}

// formatBytes renders bytes as a human-readable size.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// CheckDiskSpaceForExtract checks whether path has enough free space to
// extract an archive of archiveSize bytes: 3x the archive size covers
// holding the archive, its fully extracted tree, and headroom for a
// concurrent extension extraction, with a warning band at 2x that.
func CheckDiskSpaceForExtract(path string, archiveSize int64) *DiskSpaceCheck {
	check := CheckDiskSpaceCached(path)
	requiredBytes := uint64(archiveSize) * 3

	if check.AvailableBytes < requiredBytes {
		check.Critical = true
		check.Sufficient = false
		check.Warning = false
	} else if check.AvailableBytes < requiredBytes*2 {
		check.Warning = true
		check.Sufficient = false
	}

	return check
}

// FormatDiskSpaceMessage renders check as a multi-line status message.
func FormatDiskSpaceMessage(check *DiskSpaceCheck) string {
	var status, icon string
	switch {
	case check.Critical:
		status, icon = "CRITICAL", "❌"
	case check.Warning:
		status, icon = "WARNING", "⚠️ "
	default:
		status, icon = "OK", "✓"
	}

	msg := fmt.Sprintf(`Disk space check (%s):
   Path: %s
   Total: %s
   Available: %s (%.1f%% used)
   %s Status: %s`,
		status,
		check.Path,
		formatBytes(check.TotalBytes),
		formatBytes(check.AvailableBytes),
		check.UsedPercent,
		icon,
		status)

	switch {
	case check.Critical:
		msg += "\n   \n   CRITICAL: insufficient disk space, extraction blocked"
	case check.Warning:
		msg += "\n   \n   WARNING: low disk space, extraction may fail partway through"
	default:
		msg += "\n   \n   sufficient space available"
	}

	return msg
}

// EstimateExtractedSize estimates an archive's extracted-on-disk size
// from its compressed size and the strategy it was built with, inverting
// the teacher's EstimateBackupSize compression-ratio table: a gzip/txz
// bundle (Sharp, Zonky) typically expands 3-5x, a largely uncompressed
// zip (System) barely at all.
func EstimateExtractedSize(archiveSize uint64, strategy string) uint64 {
	var expansionRatio float64
	switch strategy {
	case "zonky":
		expansionRatio = 4.0
	case "sharp":
		expansionRatio = 3.5
	default:
		expansionRatio = 1.1
	}
	return uint64(float64(archiveSize) * expansionRatio)
}
