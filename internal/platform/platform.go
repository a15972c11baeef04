// Package platform identifies the host operating system and the privilege
// mode of the current process.
//
// The test corpus distinguishes exactly three platforms and two privilege
// modes; everything downstream (tag partitioning, package planning) branches
// on these values rather than on runtime.GOOS directly.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

type Platform string

const (
	Windows Platform = "windows"
	Linux   Platform = "linux"
	MacOS   Platform = "macos"
)

// Current maps runtime.GOOS onto the platform vocabulary. Systems beyond the
// three named ones get Linux semantics: they are Unix-like for privilege
// partitioning and tar-based packaging.
func Current() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return MacOS
	default:
		return Linux
	}
}

// Parse accepts a platform name as spelled in configuration or flags.
func Parse(raw string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case Windows:
		return Windows, nil
	case Linux:
		return Linux, nil
	case MacOS:
		return MacOS, nil
	default:
		return "", fmt.Errorf("unknown platform %q (expected windows|linux|macos)", raw)
	}
}

// IsUnix reports whether the platform uses the Unix privilege partition
// (sudo) rather than the Windows one (elevation).
func (p Platform) IsUnix() bool { return p != Windows }

func (p Platform) String() string { return string(p) }

// PrivilegeMode states whether the current process already runs with
// administrative rights.
type PrivilegeMode string

const (
	Elevated   PrivilegeMode = "elevated"
	Unelevated PrivilegeMode = "unelevated"
)

func (m PrivilegeMode) String() string { return string(m) }

// ParsePrivilege accepts a privilege mode as spelled in flags.
func ParsePrivilege(raw string) (PrivilegeMode, error) {
	switch PrivilegeMode(strings.ToLower(strings.TrimSpace(raw))) {
	case Elevated:
		return Elevated, nil
	case Unelevated:
		return Unelevated, nil
	default:
		return "", fmt.Errorf("unknown privilege mode %q (expected elevated|unelevated)", raw)
	}
}

// DetectPrivilege inspects the current process: effective UID zero on
// Unix-like systems, token elevation on Windows.
func DetectPrivilege() PrivilegeMode {
	if processElevated() {
		return Elevated
	}
	return Unelevated
}
