package pkgplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildmatrix/internal/classify"
	"buildmatrix/internal/platform"
)

func standard() classify.Classification {
	return classify.Classification{Daily: false, Reason: classify.ReasonNone}
}

func daily() classify.Classification {
	return classify.Classification{Daily: true, Reason: classify.ReasonScheduledTrigger}
}

func TestBuildStandardPackagesZipOnly(t *testing.T) {
	plan, err := Build(standard(), platform.Linux, "")
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeZip}, plan.Types)
	assert.Equal(t, []string{"linux-x64"}, plan.PlatformRuntimes)
	assert.Equal(t, DevReleaseTag, plan.ReleaseTag)
}

func TestBuildDailyWindows(t *testing.T) {
	plan, err := Build(daily(), platform.Windows, "v7.4.0-preview.2")
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeZip, TypeNupkg, TypeMSI}, plan.Types)
	assert.Equal(t, []string{"win-x64", "win-arm64"}, plan.PlatformRuntimes)
	assert.Equal(t, "v7.4.0-preview.2", plan.ReleaseTag)
}

func TestBuildDailyLinux(t *testing.T) {
	plan, err := Build(daily(), platform.Linux, "7.4.0")
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeZip, TypeNupkg, TypeTarArm}, plan.Types)
	assert.Equal(t, []string{"linux-x64", "linux-arm64", "linux-arm"}, plan.PlatformRuntimes)
	assert.Equal(t, "v7.4.0", plan.ReleaseTag)
}

func TestBuildDailyMacOSHasNoInstallerFormats(t *testing.T) {
	plan, err := Build(daily(), platform.MacOS, "")
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeZip, TypeNupkg}, plan.Types)
	assert.Equal(t, []string{"osx-x64", "osx-arm64"}, plan.PlatformRuntimes)
}

func TestBuildNormalizesShortTags(t *testing.T) {
	plan, err := Build(standard(), platform.Linux, "7.4")
	require.NoError(t, err)
	assert.Equal(t, "v7.4.0", plan.ReleaseTag)
}

func TestBuildRejectsNonSemverTags(t *testing.T) {
	_, err := Build(standard(), platform.Linux, "latest-and-greatest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a semantic version")
}
