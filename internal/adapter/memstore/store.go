// Package memstore is the in-memory cluster.Store used by tests and
// single-process deployments. One mutex serializes all writes, which makes
// the fence check trivial; the Redis adapter carries the same contract for
// multi-process deployments.
package memstore

import (
	"context"
	"sync"

	"github.com/couchcryptid/loss-recon/internal/cluster"
	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Store keeps signals and clusters in maps guarded by one mutex. All
// accessors copy on the way out so callers can never alias internal state.
type Store struct {
	mu       sync.Mutex
	signals  map[string]domain.Signal
	clusters map[string]domain.Cluster
	fences   map[domain.EventType]int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		signals:  make(map[string]domain.Signal),
		clusters: make(map[string]domain.Cluster),
		fences:   make(map[domain.EventType]int64),
	}
}

// PutSignal stores the signal unless its ID is already present.
func (s *Store) PutSignal(_ context.Context, sig domain.Signal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.signals[sig.ID]; ok {
		return false, nil
	}
	s.signals[sig.ID] = sig
	return true, nil
}

// Snapshot returns copies of the event type's clusters and loose signals
// plus the current fence.
func (s *Store) Snapshot(_ context.Context, et domain.EventType) (cluster.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := cluster.Snapshot{Fence: s.fences[et]}
	for _, c := range s.clusters {
		if c.EventType == et {
			snap.Clusters = append(snap.Clusters, c.Clone())
		}
	}
	for _, sig := range s.signals {
		if sig.EventType == et && sig.ClusterID == "" {
			snap.Unclustered = append(snap.Unclustered, sig)
		}
	}
	return snap, nil
}

// CreateCluster inserts the cluster and rebinds its members, conditional on
// the fence not having moved since the snapshot.
func (s *Store) CreateCluster(_ context.Context, fence int64, c domain.Cluster, members []domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fences[c.EventType] != fence {
		return domain.Conflictf("fence moved for %s: have %d, want %d", c.EventType, s.fences[c.EventType], fence)
	}
	if _, ok := s.clusters[c.ID]; ok {
		return domain.Conflictf("cluster %s already exists", c.ID)
	}
	s.commit(fence, c, members)
	return nil
}

// UpdateCluster replaces the cluster and binds the attached signal,
// conditional on the fence not having moved since the snapshot.
func (s *Store) UpdateCluster(_ context.Context, fence int64, c domain.Cluster, attached domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fences[c.EventType] != fence {
		return domain.Conflictf("fence moved for %s: have %d, want %d", c.EventType, s.fences[c.EventType], fence)
	}
	if _, ok := s.clusters[c.ID]; !ok {
		return domain.Conflictf("cluster %s vanished", c.ID)
	}
	s.commit(fence, c, []domain.Signal{attached})
	return nil
}

// commit applies a fenced write. Callers hold the mutex.
func (s *Store) commit(fence int64, c domain.Cluster, members []domain.Signal) {
	c.Version = fence + 1
	s.clusters[c.ID] = c.Clone()
	for _, m := range members {
		s.signals[m.ID] = m
	}
	s.fences[c.EventType] = fence + 1
}

// QueryClusters filters clusters for the read surface.
func (s *Store) QueryClusters(_ context.Context, q cluster.ClusterQuery) ([]domain.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Cluster
	for _, c := range s.clusters {
		if cluster.MatchesCluster(c, q) {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// QuerySignals filters signals for the read surface.
func (s *Store) QuerySignals(_ context.Context, q cluster.SignalQuery) ([]domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Signal
	for _, sig := range s.signals {
		if cluster.MatchesSignal(sig, q) {
			out = append(out, sig)
		}
	}
	return out, nil
}
