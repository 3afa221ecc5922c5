package source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// scriptedFetcher replays a fixed sequence of fetch results.
type scriptedFetcher struct {
	results []struct {
		records []json.RawMessage
		err     error
	}
	calls int
}

func (s *scriptedFetcher) Name() string            { return "scripted" }
func (s *scriptedFetcher) Type() domain.SourceType { return domain.SourceCAD }

func (s *scriptedFetcher) Fetch(_ context.Context) ([]json.RawMessage, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].records, s.results[i].err
}

func scripted(steps ...any) *scriptedFetcher {
	f := &scriptedFetcher{}
	for _, step := range steps {
		switch v := step.(type) {
		case error:
			f.results = append(f.results, struct {
				records []json.RawMessage
				err     error
			}{nil, v})
		case []json.RawMessage:
			f.results = append(f.results, struct {
				records []json.RawMessage
				err     error
			}{v, nil})
		}
	}
	return f
}

func TestFetchWithRetry_SucceedsFirstAttempt(t *testing.T) {
	records := []json.RawMessage{json.RawMessage(`{"a":1}`)}
	f := scripted(records)

	result := FetchWithRetry(context.Background(), f, 3, time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, result.Records, 1)
	assert.NoError(t, result.Err)
}

func TestFetchWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	transient := &domain.TransientSourceError{Err: errors.New("connection reset")}
	records := []json.RawMessage{json.RawMessage(`{}`)}
	f := scripted(transient, transient, records)

	result := FetchWithRetry(context.Background(), f, 3, time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, f.calls)
	assert.NoError(t, result.Err)
}

func TestFetchWithRetry_ExhaustsTransientAttempts(t *testing.T) {
	transient := &domain.TransientSourceError{Err: errors.New("status 503")}
	f := scripted(transient)

	result := FetchWithRetry(context.Background(), f, 3, time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, OutcomeTransient, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, f.calls)
	require.Error(t, result.Err)
	assert.True(t, domain.IsTransient(result.Err))
}

func TestFetchWithRetry_PermanentErrorStopsImmediately(t *testing.T) {
	f := scripted(errors.New("status 401: bad credentials"))

	result := FetchWithRetry(context.Background(), f, 5, time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, OutcomePermanent, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, f.calls)
	assert.False(t, domain.IsTransient(result.Err))
}

func TestFetchWithRetry_CancelledContextStopsBackoff(t *testing.T) {
	transient := &domain.TransientSourceError{Err: errors.New("timeout")}
	f := scripted(transient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := FetchWithRetry(ctx, f, 3, time.Hour, time.Hour)

	// The fetch itself ran once; the cancelled context prevents the
	// hour-long backoff from ever being waited out.
	assert.Equal(t, 1, f.calls)
	require.Error(t, result.Err)
}

func TestFetchWithRetry_ClampsAttempts(t *testing.T) {
	records := []json.RawMessage{}
	f := scripted(records)

	result := FetchWithRetry(context.Background(), f, 0, time.Millisecond, time.Millisecond)

	assert.Equal(t, OutcomeOK, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(3*time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(5*time.Second, 5*time.Second))
}
