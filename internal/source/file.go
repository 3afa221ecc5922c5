package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// FileFetcher reads a JSON array of raw records from a fixture file, the
// output of cmd/genmock. Used for local development and tests.
type FileFetcher struct {
	name       string
	sourceType domain.SourceType
	path       string
}

// NewFileFetcher creates a fetcher over a fixture file.
func NewFileFetcher(name string, st domain.SourceType, path string) *FileFetcher {
	return &FileFetcher{name: name, sourceType: st, path: path}
}

func (f *FileFetcher) Name() string            { return f.name }
func (f *FileFetcher) Type() domain.SourceType { return f.sourceType }

func (f *FileFetcher) Fetch(_ context.Context) ([]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s fixture: %w", f.name, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s fixture: %w", f.name, err)
	}
	return records, nil
}
