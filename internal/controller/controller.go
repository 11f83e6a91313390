// Package controller binds the five external binaries an instance may
// expose (initdb, pg_ctl, psql, pg_dump, pg_restore) to typed, argument
// vector builders. Each controller is a tagged variant of a common base
// rather than built behind a reflection-driven factory: the set of
// controllers is small and fixed, so a switch on Kind is simpler than an
// interface-registry indirection.
package controller

import (
	"path/filepath"

	"pgspin/internal/buildopts"
	"pgspin/internal/fsutil"
	"pgspin/internal/procexec"
)

// Kind identifies which binary a controller wraps.
type Kind int

const (
	KindInitDb Kind = iota
	KindCluster
	KindSql
	KindDump
	KindRestore
)

func (k Kind) String() string {
	switch k {
	case KindInitDb:
		return "initdb"
	case KindCluster:
		return "pg_ctl"
	case KindSql:
		return "psql"
	case KindDump:
		return "pg_dump"
	case KindRestore:
		return "pg_restore"
	default:
		return "unknown"
	}
}

// base holds the fields every controller binds: the absolute binary
// path, the owning instance's configuration, a file-system handle, and
// the process executor used to invoke the binary.
type base struct {
	kind       Kind
	binaryPath string
	instCfg    buildopts.InstanceConfiguration
	fs         *fsutil.OS
	exec       procexec.Executor
}

func newBase(kind Kind, binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor) base {
	return base{kind: kind, binaryPath: binaryPath, instCfg: instCfg, fs: fsutil.New(), exec: exec}
}

// Kind reports which binary this controller wraps.
func (b base) Kind() Kind { return b.kind }

// DataFullPath resolves a cluster's data directory to an absolute path
// rooted at the owning instance directory.
func DataFullPath(instCfg buildopts.InstanceConfiguration, cluster buildopts.DataClusterConfiguration) string {
	cluster = cluster.WithDefaults()
	if filepath.IsAbs(cluster.DataDirectory) {
		return cluster.DataDirectory
	}
	return filepath.Join(instCfg.InstanceDirectory, cluster.DataDirectory)
}
