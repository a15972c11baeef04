package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildmatrix/internal/testplan"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAbsentFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyFileYieldsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
artifact_dir: out/test-host
test_host: testhost
results_dir: results
release_tag: v7.4.0-preview.2
experimental_features:
  - name: PSNativeCommandErrorActionPreference
    files: []
  - name: PSSubsystemPluginModel
    platforms: [windows]
    files:
      - engine/experimental/subsystem.tests.ps1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/test-host", cfg.ArtifactDir)
	assert.Equal(t, "testhost", cfg.TestHost)
	assert.Equal(t, "v7.4.0-preview.2", cfg.ReleaseTag)
	require.Len(t, cfg.Features, 2)
	assert.Equal(t, "PSNativeCommandErrorActionPreference", cfg.Features[0].Name)
	assert.Empty(t, cfg.Features[0].Files)
	assert.Equal(t, []string{"windows"}, cfg.Features[1].Platforms)
	assert.Equal(t, []string{"engine/experimental/subsystem.tests.ps1"}, cfg.Features[1].Files)
}

func TestLoadPreservesFeatureOrder(t *testing.T) {
	path := writeConfig(t, `
artifact_dir: out
test_host: testhost
results_dir: results
experimental_features:
  - name: Zeta
  - name: Alpha
  - name: Mid
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	var names []string
	for _, f := range cfg.Features {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, names)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
artifact_dir: out
test_host: testhost
results_dir: results
artifacts_dir: typo
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadRejectsDuplicateFeatureNames(t *testing.T) {
	path := writeConfig(t, `
artifact_dir: out
test_host: testhost
results_dir: results
experimental_features:
  - name: FeatA
  - name: FeatA
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate experimental feature")
}

func TestLoadRejectsUnknownPlatform(t *testing.T) {
	path := writeConfig(t, `
artifact_dir: out
test_host: testhost
results_dir: results
experimental_features:
  - name: FeatA
    platforms: [solaris]
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsPathlikeTestHost(t *testing.T) {
	cfg := Default()
	cfg.TestHost = "bin/testhost"
	require.Error(t, cfg.Validate())
}

func TestSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	cfg := Config{
		ArtifactDir: "out/test-host",
		TestHost:    "testhost",
		ResultsDir:  "results",
		ReleaseTag:  "v1.2.3",
		Features: []testplan.FeatureEntry{
			{Name: "FeatA", Files: []string{"a.tests.ps1"}},
		},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	cfg := Default()
	cfg.ArtifactDir = ""
	require.Error(t, Save(path, cfg))
}
