// Package source holds the per-source fetch clients. Each fetcher is a
// black box yielding zero or more raw provider records; the ingest
// coordinator retries transient failures with bounded backoff and hands
// successful batches to the normalizer.
package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Fetcher pulls one source's current batch of raw records.
type Fetcher interface {
	Name() string
	Type() domain.SourceType
	Fetch(ctx context.Context) ([]json.RawMessage, error)
}

// Outcome classifies a fetch attempt sequence explicitly rather than
// leaving callers to re-distinguish error kinds.
type Outcome int

const (
	// OutcomeOK means records were fetched (possibly zero).
	OutcomeOK Outcome = iota
	// OutcomeTransient means every attempt failed with a retryable error.
	OutcomeTransient
	// OutcomePermanent means the source failed in a way retrying cannot
	// fix: bad credentials, 4xx, malformed feed.
	OutcomePermanent
)

// FetchResult is the explicit result of a bounded-retry fetch.
type FetchResult struct {
	Records  []json.RawMessage
	Outcome  Outcome
	Attempts int
	Err      error
}

// FetchWithRetry runs f.Fetch up to maxAttempts times, backing off
// exponentially between transient failures. Permanent failures and context
// cancellation stop immediately.
func FetchWithRetry(ctx context.Context, f Fetcher, maxAttempts int, baseBackoff, maxBackoff time.Duration) FetchResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := baseBackoff

	var result FetchResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		records, err := f.Fetch(ctx)
		if err == nil {
			result.Records = records
			result.Outcome = OutcomeOK
			result.Err = nil
			return result
		}

		result.Err = err
		if !domain.IsTransient(err) || ctx.Err() != nil {
			result.Outcome = OutcomePermanent
			return result
		}
		result.Outcome = OutcomeTransient

		if attempt == maxAttempts {
			break
		}
		if !sleepWithContext(ctx, backoff) {
			return result
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return result
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
