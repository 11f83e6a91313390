// Package environment probes and prepares an instance directory's
// binaries: required-binary version checks, platform attribute fix-ups,
// and construction of the controller set an instance exposes.
package environment

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"pgspin/internal/buildopts"
	"pgspin/internal/controller"
	"pgspin/internal/errs"
	"pgspin/internal/fsutil"
	"pgspin/internal/instance"
	"pgspin/internal/logger"
	"pgspin/internal/procexec"
	"pgspin/internal/security"
)

// requiredBinaries names the binaries every instance must expose,
// platform-qualified.
func requiredBinaries() []string {
	if runtime.GOOS == "windows" {
		return []string{"initdb.exe", "pg_ctl.exe", "postgres.exe"}
	}
	return []string{"initdb", "pg_ctl", "postgres"}
}

func optionalBinaries() []string {
	if runtime.GOOS == "windows" {
		return []string{"psql.exe", "pg_dump.exe", "pg_restore.exe"}
	}
	return []string{"psql", "pg_dump", "pg_restore"}
}

// Mode reports whether an Environment exposes the full controller set.
type Mode int

const (
	// Minimal means at least one of Sql, Dump, and Restore is absent
	// (see Environment.Missing); the ones found are still set.
	Minimal Mode = iota
	// Standard exposes Sql, Dump, and Restore alongside InitDb and Cluster.
	Standard
)

func (m Mode) String() string {
	if m == Standard {
		return "standard"
	}
	return "minimal"
}

// Environment is the controller set for one instance directory.
type Environment struct {
	Mode           Mode
	InstanceConfig buildopts.InstanceConfiguration
	InitDb         *controller.InitDbController
	Cluster        *controller.DataClusterController
	Sql            *controller.SqlController // nil when psql is missing or fails its version probe
	Dump           *controller.DumpController
	Restore        *controller.RestoreController

	// Missing names the optional controllers that were not found, so
	// callers building event streams can report exactly which capability
	// is absent instead of only "not Standard".
	Missing []string
}

// Builder validates and prepares an instance directory, then constructs
// its Environment.
type Builder struct {
	fs       *fsutil.OS
	exec     procexec.Executor
	log      logger.Logger
	audit    *security.AuditLogger
	maxDop   int
}

// New constructs an environment Builder.
func New(exec procexec.Executor, log logger.Logger, audit *security.AuditLogger, maxDop int) *Builder {
	if maxDop < 1 {
		maxDop = 32
	}
	return &Builder{fs: fsutil.New(), exec: exec, log: log, audit: audit, maxDop: maxDop}
}

// VersionInfo maps a required binary name to the first line of its
// `--version` output.
type VersionInfo map[string]string

// Validate asserts every required binary exists and runs, in parallel,
// and returns their reported versions.
func (b *Builder) Validate(ctx context.Context, instCfg buildopts.InstanceConfiguration) (VersionInfo, error) {
	binaries := requiredBinaries()
	versions := make(VersionInfo, len(binaries))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errsOut := make([]error, len(binaries))

	for i, name := range binaries {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			path := instance.BinaryPath(instCfg, name)
			if b.fs.ProbePath(path) != fsutil.File {
				errsOut[i] = errs.Validationf("environment.validate", path, "required binary missing: %s", name)
				return
			}
			version, err := b.probeVersion(ctx, path)
			if err != nil {
				errsOut[i] = err
				return
			}
			mu.Lock()
			versions[name] = version
			mu.Unlock()
		}(i, name)
	}
	wg.Wait()

	for _, err := range errsOut {
		if err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (b *Builder) probeVersion(ctx context.Context, path string) (string, error) {
	var version string
	_, err := b.exec.Execute(ctx, path, []string{"--version"}, procexec.Options{
		OutputLine: func(line string) {
			if version == "" {
				version = line
			}
		},
	})
	if err != nil {
		return "", errs.Execution("environment.validate", path, 0, err)
	}
	return version, nil
}

const permissionsSentinel = "permissions.sentinel"

// Build applies platform parameter fix-ups, then constructs the
// Environment's controller set.
func (b *Builder) Build(ctx context.Context, instCfg buildopts.InstanceConfiguration) (*Environment, error) {
	params := instCfg.PlatformParameters

	if params.NormalizeAttributes {
		if err := b.normalizeAttributes(instCfg.InstanceDirectory); err != nil {
			return nil, err
		}
	}

	if params.SetExecutableAttributes && runtime.GOOS != "windows" {
		for _, name := range requiredBinaries() {
			path := instance.BinaryPath(instCfg, name)
			if err := os.Chmod(path, 0o755); err != nil {
				return nil, errs.IO("environment.build", path, err)
			}
		}
	}

	if params.AddLocalUserAccessPermission && runtime.GOOS == "windows" {
		if err := b.grantLocalUserAccessOnce(ctx, instCfg); err != nil {
			return nil, err
		}
	}

	return b.buildControllers(ctx, instCfg)
}

// grantLocalUserAccessOnce runs icacls exactly once per instance
// directory, gated by a create-or-skip sentinel file: a second Build
// call against the same directory must not re-grant.
func (b *Builder) grantLocalUserAccessOnce(ctx context.Context, instCfg buildopts.InstanceConfiguration) error {
	sentinelPath := instCfg.InstanceDirectory + string(os.PathSeparator) + permissionsSentinel
	created, err := b.fs.TouchSentinel(sentinelPath)
	if err != nil {
		return errs.IO("environment.build", sentinelPath, err)
	}
	if !created {
		return nil
	}

	user := security.GetCurrentUser()
	args := []string{instCfg.InstanceDirectory, "/t", "/grant:r", fmt.Sprintf("%s:(OI)(CI)F", user)}
	if _, err := b.exec.Execute(ctx, "icacls", args, procexec.Options{}); err != nil {
		b.fs.DeleteFile(sentinelPath)
		return errs.Execution("environment.build", instCfg.InstanceDirectory, 0, err)
	}
	return nil
}

func (b *Builder) normalizeAttributes(root string) error {
	entries, err := b.fs.Enumerate(root, "", true)
	if err != nil {
		return errs.IO("environment.build", root, err)
	}

	sem := make(chan struct{}, 32)
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for _, e := range entries {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := os.Chmod(path, 0o644); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(e.Path)
	}
	wg.Wait()

	if firstErr != nil {
		return errs.IO("environment.build", root, firstErr)
	}
	return nil
}

func (b *Builder) buildControllers(ctx context.Context, instCfg buildopts.InstanceConfiguration) (*Environment, error) {
	env := &Environment{
		InstanceConfig: instCfg,
		InitDb:         controller.NewInitDb(instance.BinaryPath(instCfg, binaryName("initdb")), instCfg, b.exec),
		Cluster:        controller.NewDataCluster(instance.BinaryPath(instCfg, binaryName("pg_ctl")), instCfg, b.exec),
		Mode:           Standard,
	}

	for _, name := range optionalBinaries() {
		base := trimExeSuffix(name)
		path := instance.BinaryPath(instCfg, name)
		if b.fs.ProbePath(path) != fsutil.File {
			env.Missing = append(env.Missing, base)
			continue
		}
		if _, err := b.probeVersion(ctx, path); err != nil {
			env.Missing = append(env.Missing, base)
			continue
		}
		switch base {
		case "psql":
			env.Sql = controller.NewSql(path, instCfg, b.exec)
		case "pg_dump":
			env.Dump = controller.NewDump(path, instCfg, b.exec, b.audit, b.log)
		case "pg_restore":
			env.Restore = controller.NewRestore(path, instCfg, b.exec, b.audit, b.log)
		}
	}

	if len(env.Missing) > 0 {
		env.Mode = Minimal
	}
	return env, nil
}

func binaryName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func trimExeSuffix(name string) string {
	if runtime.GOOS == "windows" && len(name) > 4 && name[len(name)-4:] == ".exe" {
		return name[:len(name)-4]
	}
	return name
}
