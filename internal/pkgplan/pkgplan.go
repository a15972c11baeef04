// Package pkgplan decides which package artifacts a build should produce.
package pkgplan

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"buildmatrix/internal/classify"
	"buildmatrix/internal/platform"
)

// Type names a package artifact format.
type Type string

const (
	TypeMSI    Type = "msi"
	TypeNupkg  Type = "nupkg"
	TypeZip    Type = "zip"
	TypeTarArm Type = "tar-arm"
)

// DevReleaseTag is stamped onto packages when no release tag is configured.
const DevReleaseTag = "v0.0.0-dev"

// Plan lists the package artifacts to build after a passing run.
type Plan struct {
	Types            []Type   `json:"types"`
	ReleaseTag       string   `json:"release_tag"`
	PlatformRuntimes []string `json:"platform_runtimes"`
}

// Build derives the package plan from the build classification and host
// platform.
//
// Standard builds package the portable zip only. Daily builds additionally
// produce the nupkg feed package everywhere, the MSI installer on Windows,
// and the arm tarball on Linux; they also widen the runtime list to the
// platform's arm variants.
//
// The release tag must be a semantic version; a leading "v" is optional on
// input and always present on output. An empty tag maps to DevReleaseTag.
func Build(cls classify.Classification, plat platform.Platform, releaseTag string) (Plan, error) {
	tag, err := normalizeTag(releaseTag)
	if err != nil {
		return Plan{}, err
	}

	types := []Type{TypeZip}
	if cls.Daily {
		types = append(types, TypeNupkg)
		switch plat {
		case platform.Windows:
			types = append(types, TypeMSI)
		case platform.Linux:
			types = append(types, TypeTarArm)
		}
	}

	return Plan{
		Types:            types,
		ReleaseTag:       tag,
		PlatformRuntimes: runtimesFor(cls, plat),
	}, nil
}

func runtimesFor(cls classify.Classification, plat platform.Platform) []string {
	var runtimes []string
	switch plat {
	case platform.Windows:
		runtimes = append(runtimes, "win-x64")
		if cls.Daily {
			runtimes = append(runtimes, "win-arm64")
		}
	case platform.MacOS:
		runtimes = append(runtimes, "osx-x64")
		if cls.Daily {
			runtimes = append(runtimes, "osx-arm64")
		}
	default:
		runtimes = append(runtimes, "linux-x64")
		if cls.Daily {
			runtimes = append(runtimes, "linux-arm64", "linux-arm")
		}
	}
	return runtimes
}

// normalizeTag validates the tag as a semantic version and pins the
// leading "v" spelling.
func normalizeTag(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DevReleaseTag, nil
	}
	v, err := goversion.NewSemver(strings.TrimPrefix(raw, "v"))
	if err != nil {
		return "", fmt.Errorf("release tag %q is not a semantic version: %w", raw, err)
	}
	return "v" + v.String(), nil
}
