package cmd

import "testing"

func TestParseClusterFlag(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantID   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "valid triple", raw: "primary:localhost:5432", wantID: "primary", wantHost: "localhost", wantPort: 5432},
		{name: "missing port", raw: "primary:localhost", wantErr: true},
		{name: "too many parts", raw: "primary:localhost:5432:extra", wantErr: true},
		{name: "non-numeric port", raw: "primary:localhost:abc", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dc, err := parseClusterFlag(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseClusterFlag(%q): expected error, got none", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseClusterFlag(%q): unexpected error: %v", tc.raw, err)
			}
			if dc.UniqueID != tc.wantID || dc.Host != tc.wantHost || dc.Port != tc.wantPort {
				t.Errorf("parseClusterFlag(%q) = %+v, want {%s %s %d}", tc.raw, dc, tc.wantID, tc.wantHost, tc.wantPort)
			}
		})
	}
}
