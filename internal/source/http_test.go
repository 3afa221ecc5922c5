package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

func TestHTTPFetcher_Success(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("cad-feed", domain.SourceCAD, srv.URL, "secret-token", 5*time.Second)
	records, err := f.Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestHTTPFetcher_NoTokenSkipsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("open-feed", domain.SourceWeather, srv.URL, "", 5*time.Second)
	_, err := f.Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestHTTPFetcher_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher("flaky", domain.SourceNews, srv.URL, "", 5*time.Second)
	_, err := f.Fetch(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestHTTPFetcher_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("locked", domain.SourceFireCommercial, srv.URL, "stale", 5*time.Second)
	_, err := f.Fetch(context.Background())

	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestHTTPFetcher_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewHTTPFetcher("unreachable", domain.SourceCAD, srv.URL, "", time.Second)
	_, err := f.Fetch(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestHTTPFetcher_MalformedFeedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("garbled", domain.SourceDeclaration, srv.URL, "", 5*time.Second)
	_, err := f.Fetch(context.Background())

	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))
	assert.Contains(t, err.Error(), "decode garbled feed")
}
