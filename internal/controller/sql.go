package controller

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"pgspin/internal/buildopts"
	"pgspin/internal/errs"
	"pgspin/internal/procexec"
)

// SqlController wraps psql.
type SqlController struct {
	base
}

// NewSql constructs a SqlController bound to binaryPath.
func NewSql(binaryPath string, instCfg buildopts.InstanceConfiguration, exec procexec.Executor) *SqlController {
	return &SqlController{base: newBase(KindSql, binaryPath, instCfg, exec)}
}

// DatabaseRow is one row of `psql --list --csv`.
type DatabaseRow struct {
	Name             string
	Owner            string
	Encoding         string
	LocaleProvider   string
	Collate          string
	CType            string
	Locale           string
	ICURules         string
	AccessPrivileges string
}

// RowFunc receives one parsed database row.
type RowFunc func(DatabaseRow)

// RowLineFunc receives one line of psql output.
type RowLineFunc func(line string)

func connectionArgs(cluster buildopts.DataClusterConfiguration, user string) []string {
	cluster = cluster.WithDefaults()
	if user == "" {
		user = cluster.Superuser
	}
	return []string{"-U", user, "-h", cluster.Host, "-p", strconv.Itoa(cluster.Port)}
}

// ListDatabases runs `psql --list --csv --tuples-only` and invokes onRow
// for each well-formed 9-column record.
func (c *SqlController) ListDatabases(ctx context.Context, cluster buildopts.DataClusterConfiguration, onRow RowFunc) error {
	args := append(connectionArgs(cluster, ""), "--list", "--csv", "--tuples-only")

	var lines []string
	_, err := c.exec.Execute(ctx, c.binaryPath, args, procexec.Options{
		OutputLine: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		return errs.Execution("cluster.listDatabases", cluster.UniqueID, 0, err)
	}

	for _, line := range lines {
		record, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil || len(record) != 9 {
			continue
		}
		if onRow != nil {
			onRow(DatabaseRow{
				Name: record[0], Owner: record[1], Encoding: record[2],
				LocaleProvider: record[3], Collate: record[4], CType: record[5],
				Locale: record[6], ICURules: record[7], AccessPrivileges: record[8],
			})
		}
	}
	return nil
}

// ExecuteSql runs psql -c <sql> against an optional database/user,
// streaming output lines to onOutput unless format names an output file.
func (c *SqlController) ExecuteSql(ctx context.Context, cluster buildopts.DataClusterConfiguration, sql, db, user string, format buildopts.SqlOutputFormat, onOutput RowLineFunc) error {
	return c.execute(ctx, cluster, []string{"-c", sql}, db, user, format, onOutput)
}

// ExecuteFile runs psql -f <path> against an optional database/user.
func (c *SqlController) ExecuteFile(ctx context.Context, cluster buildopts.DataClusterConfiguration, path, db, user string, format buildopts.SqlOutputFormat, onOutput RowLineFunc) error {
	return c.execute(ctx, cluster, []string{"-f", path}, db, user, format, onOutput)
}

func (c *SqlController) execute(ctx context.Context, cluster buildopts.DataClusterConfiguration, sourceArgs []string, db, user string, format buildopts.SqlOutputFormat, onOutput RowLineFunc) error {
	args := connectionArgs(cluster, user)
	if db != "" {
		args = append(args, "-d", db)
	}
	args = append(args, sourceArgs...)

	if format.NoAlign {
		args = append(args, "--no-align")
	}
	if format.CSV {
		args = append(args, "--csv")
	}
	if format.FieldSeparator != "" {
		args = append(args, "-F", format.FieldSeparator)
	}
	if format.RecordSeparator != "" {
		args = append(args, "-R", format.RecordSeparator)
	}
	if format.TuplesOnly {
		args = append(args, "--tuples-only")
	}
	if format.OutputFile != "" {
		args = append(args, "-o", format.OutputFile)
	}

	opts := procexec.Options{}
	if format.OutputFile == "" && onOutput != nil {
		opts.OutputLine = func(line string) { onOutput(line) }
	}

	_, err := c.exec.Execute(ctx, c.binaryPath, args, opts)
	if err != nil {
		return errs.Execution("cluster.executeSql", cluster.UniqueID, 0, err)
	}
	return nil
}
