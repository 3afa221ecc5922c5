package source

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Manifest declares the configured sources. Loaded once at startup;
// run scheduling and triggers live outside this service.
type Manifest struct {
	Sources []ManifestEntry `yaml:"sources"`
}

// ManifestEntry declares one source. Exactly one of URL or Path must be
// set. TokenEnv names the environment variable holding the bearer
// credential for authenticated feeds.
type ManifestEntry struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url,omitempty"`
	Path     string `yaml:"path,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// LoadManifest reads and validates the sources manifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read sources manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse sources manifest: %w", err)
	}
	if len(m.Sources) == 0 {
		return Manifest{}, fmt.Errorf("sources manifest %s declares no sources", path)
	}

	seen := map[string]bool{}
	for i, e := range m.Sources {
		if e.Name == "" {
			return Manifest{}, fmt.Errorf("sources[%d]: missing name", i)
		}
		if seen[e.Name] {
			return Manifest{}, fmt.Errorf("sources[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if !slices.Contains(domain.KnownSourceTypes, domain.SourceType(e.Type)) {
			return Manifest{}, fmt.Errorf("source %q: unknown type %q", e.Name, e.Type)
		}
		if (e.URL == "") == (e.Path == "") {
			return Manifest{}, fmt.Errorf("source %q: exactly one of url or path required", e.Name)
		}
	}
	return m, nil
}

// BuildFetcher constructs the fetcher for one manifest entry. A declared
// but unset credential env var is a domain.ConfigurationError: that source's
// run is aborted while every other source proceeds.
func BuildFetcher(e ManifestEntry, timeout time.Duration) (Fetcher, error) {
	if e.Path != "" {
		return NewFileFetcher(e.Name, domain.SourceType(e.Type), e.Path), nil
	}

	var token string
	if e.TokenEnv != "" {
		token = os.Getenv(e.TokenEnv)
		if token == "" {
			return nil, domain.Configurationf("source %q: credential env %s is not set", e.Name, e.TokenEnv)
		}
	}
	return NewHTTPFetcher(e.Name, domain.SourceType(e.Type), e.URL, token, timeout), nil
}

// EnabledSources filters out disabled manifest entries.
func (m Manifest) EnabledSources() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Sources {
		if !e.Disabled {
			out = append(out, e)
		}
	}
	return out
}
