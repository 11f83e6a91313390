//go:build netbsd
// +build netbsd

package checks

import "path/filepath"

// CheckDiskSpace checks available disk space for a given path (NetBSD stub).
// The NetBSD statfs layout differs enough from the generic syscall.Statfs_t
// shape that we don't special-case it; callers get a fixed, generously
// sufficient assumption instead of failing the build.
func CheckDiskSpace(path string) *DiskSpaceCheck {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	return &DiskSpaceCheck{
		Path:           absPath,
		TotalBytes:     1024 * 1024 * 1024 * 1024,
		AvailableBytes: 512 * 1024 * 1024 * 1024,
		UsedBytes:      512 * 1024 * 1024 * 1024,
		UsedPercent:    50.0,
		Sufficient:     true,
	}
}
