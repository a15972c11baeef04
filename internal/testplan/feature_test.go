package testplan

import (
	"strings"
	"testing"

	"buildmatrix/internal/platform"
)

func TestFeatureEntryAppliesTo(t *testing.T) {
	cases := []struct {
		name  string
		entry FeatureEntry
		plat  platform.Platform
		want  bool
	}{
		{
			name:  "no restriction applies everywhere",
			entry: FeatureEntry{Name: "FeatA"},
			plat:  platform.MacOS,
			want:  true,
		},
		{
			name:  "listed platform",
			entry: FeatureEntry{Name: "FeatA", Platforms: []string{"windows"}},
			plat:  platform.Windows,
			want:  true,
		},
		{
			name:  "unlisted platform",
			entry: FeatureEntry{Name: "FeatA", Platforms: []string{"windows"}},
			plat:  platform.Linux,
			want:  false,
		},
		{
			name:  "case insensitive",
			entry: FeatureEntry{Name: "FeatA", Platforms: []string{"Linux"}},
			plat:  platform.Linux,
			want:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entry.AppliesTo(tc.plat); got != tc.want {
				t.Fatalf("AppliesTo(%s) = %v, want %v", tc.plat, got, tc.want)
			}
		})
	}
}

func TestFeatureEntryValidate(t *testing.T) {
	cases := []struct {
		name    string
		entry   FeatureEntry
		wantErr string
	}{
		{
			name:  "valid",
			entry: FeatureEntry{Name: "FeatA", Files: []string{"a.tests.ps1"}},
		},
		{
			name:  "empty file list is valid",
			entry: FeatureEntry{Name: "FeatA"},
		},
		{
			name:    "missing name",
			entry:   FeatureEntry{Files: []string{"a.tests.ps1"}},
			wantErr: "name is required",
		},
		{
			name:    "blank file entry",
			entry:   FeatureEntry{Name: "FeatA", Files: []string{" "}},
			wantErr: "files[0] is empty",
		},
		{
			name:    "bad platform",
			entry:   FeatureEntry{Name: "FeatA", Platforms: []string{"solaris"}},
			wantErr: "unknown platform",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}
