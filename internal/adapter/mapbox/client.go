package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/loss-recon/internal/domain"
	"github.com/couchcryptid/loss-recon/internal/observability"
)

// Client implements domain.Resolver using the Mapbox Geocoding API.
// Reverse lookups sharpen a coordinate pair to zip/county/state; forward
// lookups turn place text into coordinates.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox resolution client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// ResolveCoordinates converts a coordinate pair to administrative context.
func (c *Client) ResolveCoordinates(ctx context.Context, lat, lon float64) (domain.ResolvedLocation, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"postcode,district,region"},
	}

	result, err := c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
	if err != nil {
		return result, err
	}
	// The queried point stays authoritative.
	result.Lat, result.Lon, result.HasCoords = lat, lon, true
	return result, nil
}

// ResolvePlace converts place text and a state to coordinates and context.
func (c *Client) ResolvePlace(ctx context.Context, place, state string) (domain.ResolvedLocation, error) {
	query := place
	if state != "" {
		query = fmt.Sprintf("%s, %s", place, state)
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"address,place,locality,postcode"},
	}

	return c.doRequest(ctx, u+"?"+params.Encode(), "forward")
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) (domain.ResolvedLocation, error) {
	start := time.Now()
	defer func() {
		c.metrics.ResolveAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		c.metrics.ResolveRequests.WithLabelValues(method, "error").Inc()
		return domain.ResolvedLocation{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ResolveRequests.WithLabelValues(method, "error").Inc()
		return domain.ResolvedLocation{}, &domain.TransientSourceError{
			Err: fmt.Errorf("%s resolve request: %w", method, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.ResolveRequests.WithLabelValues(method, "error").Inc()
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 500 {
			return domain.ResolvedLocation{}, &domain.TransientSourceError{Err: err}
		}
		return domain.ResolvedLocation{}, err
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.metrics.ResolveRequests.WithLabelValues(method, "error").Inc()
		return domain.ResolvedLocation{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		c.metrics.ResolveRequests.WithLabelValues(method, "empty").Inc()
		return domain.ResolvedLocation{}, nil
	}

	c.metrics.ResolveRequests.WithLabelValues(method, "success").Inc()
	return fromFeature(mapboxResp.Features[0]), nil
}

// fromFeature flattens a Mapbox feature and its context chain into a
// ResolvedLocation.
func fromFeature(f feature) domain.ResolvedLocation {
	result := domain.ResolvedLocation{Confidence: f.Relevance}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
		result.HasCoords = true
	}

	apply := func(id, text, shortCode string) {
		switch {
		case strings.HasPrefix(id, "postcode"):
			if result.Zip == "" {
				result.Zip = text
			}
		case strings.HasPrefix(id, "district"):
			if result.County == "" {
				result.County = strings.TrimSuffix(text, " County")
			}
		case strings.HasPrefix(id, "region"):
			if result.State == "" {
				result.State = stateFromShortCode(shortCode, text)
			}
		}
	}

	apply(f.ID, f.Text, f.Properties.ShortCode)
	for _, entry := range f.Context {
		apply(entry.ID, entry.Text, entry.ShortCode)
	}
	return result
}

// stateFromShortCode maps a Mapbox region short code ("US-TX") to the state
// abbreviation, falling back to the region text.
func stateFromShortCode(shortCode, text string) string {
	if _, abbr, ok := strings.Cut(shortCode, "-"); ok {
		return abbr
	}
	return text
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string         `json:"id"`
	Center     []float64      `json:"center"` // [lon, lat]
	PlaceName  string         `json:"place_name"`
	Text       string         `json:"text"`
	Relevance  float64        `json:"relevance"`
	Properties featureProps   `json:"properties"`
	Context    []contextEntry `json:"context"`
}

type featureProps struct {
	ShortCode string `json:"short_code"`
}

type contextEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}
