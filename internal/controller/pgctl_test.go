package controller

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePostmasterPid(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Status
		wantErr bool
	}{
		{
			name: "well-formed five-line file",
			content: "12345\n/var/lib/postgres/data\n1700000000\n5432\nlocalhost\n",
			want: Status{Valid: true, Pid: 12345, DataDir: "/var/lib/postgres/data", StartTime: 1700000000, Port: 5432, Host: "localhost"},
		},
		{
			name: "tolerates trailing lines from newer engine versions",
			content: "12345\n/var/lib/postgres/data\n1700000000\n5432\nlocalhost\nready\n  shared memory segment\n",
			want: Status{Valid: true, Pid: 12345, DataDir: "/var/lib/postgres/data", StartTime: 1700000000, Port: 5432, Host: "localhost"},
		},
		{
			name:    "too few lines",
			content: "12345\n/var/lib/postgres/data\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".pid")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			got, err := parsePostmasterPid(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parsePostmasterPid(): want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePostmasterPid() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parsePostmasterPid() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
