package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// HTTPFetcher pulls a JSON array of raw records from a provider endpoint.
type HTTPFetcher struct {
	name       string
	sourceType domain.SourceType
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher for one provider endpoint. token is the
// optional bearer credential; pass "" for open feeds.
func NewHTTPFetcher(name string, st domain.SourceType, url, token string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		name:       name,
		sourceType: st,
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Name() string            { return f.name }
func (f *HTTPFetcher) Type() domain.SourceType { return f.sourceType }

// Fetch GETs the feed. Network errors, timeouts, and 5xx responses are
// transient; anything else the retry loop treats as permanent.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", f.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientSourceError{Err: fmt.Errorf("fetch %s: %w", f.name, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &domain.TransientSourceError{
			Err: fmt.Errorf("fetch %s: status %d", f.name, resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", f.name, resp.StatusCode, body)
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s feed: %w", f.name, err)
	}
	return records, nil
}
