package instance

import (
	"path/filepath"
	"testing"

	"pgspin/internal/archive"
	"pgspin/internal/buildopts"
)

func TestDetectContainerRoot(t *testing.T) {
	tests := []struct {
		name    string
		entries []archive.Entry
		want    string
		wantOk  bool
	}{
		{
			name: "single container with bin/lib/share",
			entries: []archive.Entry{
				{Name: "pljava-1.6.0/"},
				{Name: "pljava-1.6.0/bin/"},
				{Name: "pljava-1.6.0/lib/pljava.so"},
				{Name: "pljava-1.6.0/share/pljava.jar"},
			},
			want:   "pljava-1.6.0",
			wantOk: true,
		},
		{
			name: "flat archive with no container",
			entries: []archive.Entry{
				{Name: "pljava.so"},
				{Name: "pljava.jar"},
			},
			want:   "",
			wantOk: false,
		},
		{
			name: "nested bin does not count",
			entries: []archive.Entry{
				{Name: "a/b/bin/tool"},
			},
			want:   "",
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := detectContainerRoot(tt.entries)
			if ok != tt.wantOk || got != tt.want {
				t.Errorf("detectContainerRoot() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestBinaryPath(t *testing.T) {
	cfg := buildopts.InstanceConfiguration{InstanceDirectory: "/opt/pg"}
	want := filepath.Join("/opt/pg", "bin", "postgres")
	if got := BinaryPath(cfg, "postgres"); got != want {
		t.Errorf("BinaryPath() = %q, want %q", got, want)
	}
}
