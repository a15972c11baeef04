package platform

import (
	"runtime"
	"testing"
)

func TestParse_AcceptsVocabularyAndRejectsOthers(t *testing.T) {
	cases := []struct {
		raw     string
		want    Platform
		wantErr bool
	}{
		{raw: "windows", want: Windows},
		{raw: "Linux", want: Linux},
		{raw: " macos ", want: MacOS},
		{raw: "darwin", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "freebsd", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Parse(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCurrent_MatchesGOOS(t *testing.T) {
	got := Current()
	switch runtime.GOOS {
	case "windows":
		if got != Windows {
			t.Fatalf("Current() = %q on windows", got)
		}
	case "darwin":
		if got != MacOS {
			t.Fatalf("Current() = %q on darwin", got)
		}
	default:
		if got != Linux {
			t.Fatalf("Current() = %q on %s", got, runtime.GOOS)
		}
	}
}

func TestIsUnix_OnlyWindowsIsNot(t *testing.T) {
	if Windows.IsUnix() {
		t.Fatalf("windows must not be unix-like")
	}
	if !Linux.IsUnix() || !MacOS.IsUnix() {
		t.Fatalf("linux and macos must be unix-like")
	}
}

func TestDetectPrivilege_ReturnsAMode(t *testing.T) {
	got := DetectPrivilege()
	if got != Elevated && got != Unelevated {
		t.Fatalf("DetectPrivilege() = %q", got)
	}
}

func TestParsePrivilege(t *testing.T) {
	if m, err := ParsePrivilege("ELEVATED"); err != nil || m != Elevated {
		t.Fatalf("ParsePrivilege(ELEVATED) = %q, %v", m, err)
	}
	if _, err := ParsePrivilege("root"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
