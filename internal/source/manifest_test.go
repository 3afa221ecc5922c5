package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadManifest_Valid(t *testing.T) {
	path := writeManifest(t, `
sources:
  - name: nws-storm-reports
    type: weather
    url: https://example.test/storm-reports
  - name: county-cad
    type: cad
    url: https://example.test/cad
    token_env: CAD_TOKEN
  - name: mock-news
    type: news
    path: data/mock/news_mentions.json
    disabled: true
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Sources, 3)
	assert.Equal(t, "CAD_TOKEN", m.Sources[1].TokenEnv)
	assert.True(t, m.Sources[2].Disabled)
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name:     "empty manifest",
			contents: "sources: []\n",
			wantErr:  "declares no sources",
		},
		{
			name: "missing name",
			contents: `
sources:
  - type: weather
    url: https://example.test/a
`,
			wantErr: "missing name",
		},
		{
			name: "duplicate name",
			contents: `
sources:
  - name: feed
    type: weather
    url: https://example.test/a
  - name: feed
    type: cad
    url: https://example.test/b
`,
			wantErr: `duplicate name "feed"`,
		},
		{
			name: "unknown type",
			contents: `
sources:
  - name: feed
    type: seismograph
    url: https://example.test/a
`,
			wantErr: `unknown type "seismograph"`,
		},
		{
			name: "both url and path",
			contents: `
sources:
  - name: feed
    type: weather
    url: https://example.test/a
    path: data/mock/a.json
`,
			wantErr: "exactly one of url or path",
		},
		{
			name: "neither url nor path",
			contents: `
sources:
  - name: feed
    type: weather
`,
			wantErr: "exactly one of url or path",
		},
		{
			name:     "not yaml",
			contents: "{{{",
			wantErr:  "parse sources manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, tt.contents))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read sources manifest")
}

func TestBuildFetcher_FilePath(t *testing.T) {
	f, err := BuildFetcher(ManifestEntry{
		Name: "mock-weather",
		Type: "weather",
		Path: "data/mock/weather_reports.json",
	}, 5*time.Second)

	require.NoError(t, err)
	assert.IsType(t, &FileFetcher{}, f)
	assert.Equal(t, "mock-weather", f.Name())
	assert.Equal(t, domain.SourceWeather, f.Type())
}

func TestBuildFetcher_HTTPWithToken(t *testing.T) {
	t.Setenv("TEST_FEED_TOKEN", "abc123")

	f, err := BuildFetcher(ManifestEntry{
		Name:     "county-cad",
		Type:     "cad",
		URL:      "https://example.test/cad",
		TokenEnv: "TEST_FEED_TOKEN",
	}, 5*time.Second)

	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)
	assert.Equal(t, domain.SourceCAD, f.Type())
}

func TestBuildFetcher_MissingCredentialEnv(t *testing.T) {
	t.Setenv("TEST_FEED_TOKEN", "")

	_, err := BuildFetcher(ManifestEntry{
		Name:     "county-cad",
		Type:     "cad",
		URL:      "https://example.test/cad",
		TokenEnv: "TEST_FEED_TOKEN",
	}, 5*time.Second)

	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
	assert.Contains(t, err.Error(), "TEST_FEED_TOKEN")
}

func TestEnabledSources(t *testing.T) {
	m := Manifest{Sources: []ManifestEntry{
		{Name: "a", Type: "weather", URL: "https://example.test/a"},
		{Name: "b", Type: "cad", URL: "https://example.test/b", Disabled: true},
		{Name: "c", Type: "news", URL: "https://example.test/c"},
	}}

	enabled := m.EnabledSources()
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].Name)
	assert.Equal(t, "c", enabled[1].Name)
}
