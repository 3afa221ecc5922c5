// Package cluster assembles normalized signals into deduplicated,
// confidence-scored clusters against a fenced store.
package cluster

import (
	"context"
	"time"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Snapshot is a read view of one event type's reconciliation state plus the
// fence token guarding it. Unclustered holds loose signals (including
// suppressed ones) still eligible to seed a corroborated cluster.
type Snapshot struct {
	Fence       int64
	Clusters    []domain.Cluster
	Unclustered []domain.Signal
}

// ClusterQuery filters the exposed cluster read surface. Zero fields are
// unset. MaxScore of 0 means uncapped.
type ClusterQuery struct {
	EventType  domain.EventType
	State      string
	Zip        string
	CountyFIPS string
	MinScore   int
	MaxScore   int
	Status     domain.VerificationStatus
	From       time.Time
	To         time.Time
}

// SignalQuery filters the exposed signal read surface.
type SignalQuery struct {
	SourceType  domain.SourceType
	EventType   domain.EventType
	ClusterID   string
	Unclustered bool
}

// Store persists signals and clusters. Every cluster mutation is a fenced
// conditional write: Snapshot returns a per-event-type fence, and
// CreateCluster/UpdateCluster fail with a domain.ConflictError when any
// concurrent write moved it. That single guard is what keeps two
// overlapping runs from creating two clusters for one real event.
type Store interface {
	// PutSignal stores a signal if its ID is absent. The false return is
	// the idempotence signal: this provider record was already ingested.
	PutSignal(ctx context.Context, sig domain.Signal) (bool, error)

	// Snapshot reads the clusters and loose signals for one event type
	// together with the current fence.
	Snapshot(ctx context.Context, et domain.EventType) (Snapshot, error)

	// CreateCluster inserts a new cluster and rebinds its member signals
	// in one conditional write against the fence.
	CreateCluster(ctx context.Context, fence int64, c domain.Cluster, members []domain.Signal) error

	// UpdateCluster replaces an existing cluster and binds the newly
	// attached signal in one conditional write against the fence.
	UpdateCluster(ctx context.Context, fence int64, c domain.Cluster, attached domain.Signal) error

	// QueryClusters and QuerySignals serve the read-only API; downstream
	// consumers never mutate clusters directly.
	QueryClusters(ctx context.Context, q ClusterQuery) ([]domain.Cluster, error)
	QuerySignals(ctx context.Context, q SignalQuery) ([]domain.Signal, error)
}

// MatchesCluster reports whether a cluster satisfies a query. Store
// implementations share it so filter semantics cannot drift.
func MatchesCluster(c domain.Cluster, q ClusterQuery) bool {
	if q.EventType != "" && c.EventType != q.EventType {
		return false
	}
	if q.Status != "" && c.VerificationStatus != q.Status {
		return false
	}
	if c.ConfidenceScore < q.MinScore {
		return false
	}
	if q.MaxScore > 0 && c.ConfidenceScore > q.MaxScore {
		return false
	}
	if q.State != "" && c.State != q.State {
		return false
	}
	if q.Zip != "" && !containsString(c.Annotation.ZipCodes, q.Zip) {
		return false
	}
	if q.CountyFIPS != "" && c.Annotation.CountyFIPS != q.CountyFIPS {
		return false
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		if !c.Window.Overlaps(q.From, q.To) {
			return false
		}
	}
	return true
}

// MatchesSignal reports whether a signal satisfies a query.
func MatchesSignal(s domain.Signal, q SignalQuery) bool {
	if q.SourceType != "" && s.SourceType != q.SourceType {
		return false
	}
	if q.EventType != "" && s.EventType != q.EventType {
		return false
	}
	if q.ClusterID != "" && s.ClusterID != q.ClusterID {
		return false
	}
	if q.Unclustered && s.ClusterID != "" {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
