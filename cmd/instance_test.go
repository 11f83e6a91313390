package cmd

import (
	"testing"

	"pgspin/internal/buildopts"
	"pgspin/internal/config"
)

func TestParseArtifactFlag(t *testing.T) {
	cfg = &config.Config{CacheDir: "/tmp/pgspin-cache"}

	cases := []struct {
		name       string
		raw        string
		wantKind   buildopts.ArtifactKind
		wantSource string
		wantErr    bool
	}{
		{name: "bare source defaults to main", raw: "/tmp/pg.tar.gz", wantKind: buildopts.KindMain, wantSource: "/tmp/pg.tar.gz"},
		{name: "explicit main prefix", raw: "main:/tmp/pg.tar.gz", wantKind: buildopts.KindMain, wantSource: "/tmp/pg.tar.gz"},
		{name: "explicit extension prefix", raw: "extension:/tmp/pgvector.tar.gz", wantKind: buildopts.KindExtension, wantSource: "/tmp/pgvector.tar.gz"},
		{name: "url with scheme colon is not a kind prefix", raw: "https://example.com/pg.zip", wantKind: buildopts.KindMain, wantSource: "https://example.com/pg.zip"},
		{name: "empty source errors", raw: "main:", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := parseArtifactFlag(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseArtifactFlag(%q): expected error, got none", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArtifactFlag(%q): unexpected error: %v", tc.raw, err)
			}
			if a.Kind != tc.wantKind {
				t.Errorf("parseArtifactFlag(%q): kind = %v, want %v", tc.raw, a.Kind, tc.wantKind)
			}
			if a.Source != tc.wantSource {
				t.Errorf("parseArtifactFlag(%q): source = %q, want %q", tc.raw, a.Source, tc.wantSource)
			}
		})
	}
}
