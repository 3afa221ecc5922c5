// Package redisstore is the Redis-backed cluster.Store for multi-process
// deployments, where independent source runs race against one shared store.
// The per-event-type fence key is WATCHed around every cluster write, so a
// concurrent commit aborts the transaction and surfaces as a
// domain.ConflictError for the assembler's single retry.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/loss-recon/internal/cluster"
	"github.com/couchcryptid/loss-recon/internal/domain"
)

// Store implements cluster.Store on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps a Redis client. prefix namespaces all keys; pass "" for the
// default.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "loss_recon"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) signalKey(id string) string  { return s.prefix + ":signal:" + id }
func (s *Store) clusterKey(id string) string { return s.prefix + ":cluster:" + id }

func (s *Store) signalIndexKey() string { return s.prefix + ":idx:signals" }

func (s *Store) clusterIndexKey(et domain.EventType) string {
	return s.prefix + ":idx:clusters:" + string(et)
}

func (s *Store) looseIndexKey(et domain.EventType) string {
	return s.prefix + ":idx:loose:" + string(et)
}

func (s *Store) fenceKey(et domain.EventType) string {
	return s.prefix + ":fence:" + string(et)
}

// PutSignal stores the signal with SETNX; the existing key is the
// idempotence guard.
func (s *Store) PutSignal(ctx context.Context, sig domain.Signal) (bool, error) {
	data, err := json.Marshal(sig)
	if err != nil {
		return false, fmt.Errorf("marshal signal %s: %w", sig.ID, err)
	}

	inserted, err := s.client.SetNX(ctx, s.signalKey(sig.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx signal %s: %w", sig.ID, err)
	}
	if !inserted {
		return false, nil
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, s.signalIndexKey(), sig.ID)
	if sig.ClusterID == "" {
		pipe.SAdd(ctx, s.looseIndexKey(sig.EventType), sig.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("index signal %s: %w", sig.ID, err)
	}
	return true, nil
}

// Snapshot reads the fence, then the event type's clusters and loose
// signals.
func (s *Store) Snapshot(ctx context.Context, et domain.EventType) (cluster.Snapshot, error) {
	fence, err := s.readFence(ctx, et)
	if err != nil {
		return cluster.Snapshot{}, err
	}
	snap := cluster.Snapshot{Fence: fence}

	clusterIDs, err := s.client.SMembers(ctx, s.clusterIndexKey(et)).Result()
	if err != nil {
		return cluster.Snapshot{}, fmt.Errorf("read cluster index %s: %w", et, err)
	}
	for _, id := range clusterIDs {
		c, ok, err := s.getCluster(ctx, id)
		if err != nil {
			return cluster.Snapshot{}, err
		}
		if ok {
			snap.Clusters = append(snap.Clusters, c)
		}
	}

	looseIDs, err := s.client.SMembers(ctx, s.looseIndexKey(et)).Result()
	if err != nil {
		return cluster.Snapshot{}, fmt.Errorf("read loose index %s: %w", et, err)
	}
	for _, id := range looseIDs {
		sig, ok, err := s.getSignal(ctx, id)
		if err != nil {
			return cluster.Snapshot{}, err
		}
		// A signal clustered since it was indexed is stale in the loose
		// set; skip it and let the next write clean the index.
		if ok && sig.ClusterID == "" {
			snap.Unclustered = append(snap.Unclustered, sig)
		}
	}

	return snap, nil
}

// CreateCluster commits a new cluster and its members in one WATCHed
// transaction against the fence.
func (s *Store) CreateCluster(ctx context.Context, fence int64, c domain.Cluster, members []domain.Signal) error {
	return s.fencedWrite(ctx, fence, c, members, false)
}

// UpdateCluster commits a cluster replacement and the attached signal in
// one WATCHed transaction against the fence.
func (s *Store) UpdateCluster(ctx context.Context, fence int64, c domain.Cluster, attached domain.Signal) error {
	return s.fencedWrite(ctx, fence, c, []domain.Signal{attached}, true)
}

func (s *Store) fencedWrite(ctx context.Context, fence int64, c domain.Cluster, members []domain.Signal, mustExist bool) error {
	fenceKey := s.fenceKey(c.EventType)
	c.Version = fence + 1

	clusterData, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cluster %s: %w", c.ID, err)
	}
	memberData := make(map[string][]byte, len(members))
	for _, m := range members {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal signal %s: %w", m.ID, err)
		}
		memberData[m.ID] = data
	}

	txErr := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fenceKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read fence %s: %w", c.EventType, err)
		}
		if current != fence {
			return domain.Conflictf("fence moved for %s: have %d, want %d", c.EventType, current, fence)
		}
		if mustExist {
			n, err := tx.Exists(ctx, s.clusterKey(c.ID)).Result()
			if err != nil {
				return fmt.Errorf("check cluster %s: %w", c.ID, err)
			}
			if n == 0 {
				return domain.Conflictf("cluster %s vanished", c.ID)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.clusterKey(c.ID), clusterData, 0)
			pipe.SAdd(ctx, s.clusterIndexKey(c.EventType), c.ID)
			for _, m := range members {
				pipe.Set(ctx, s.signalKey(m.ID), memberData[m.ID], 0)
				pipe.SRem(ctx, s.looseIndexKey(m.EventType), m.ID)
			}
			pipe.Set(ctx, fenceKey, strconv.FormatInt(fence+1, 10), 0)
			return nil
		})
		return err
	}, fenceKey)

	if errors.Is(txErr, redis.TxFailedErr) {
		return &domain.ConflictError{Err: fmt.Errorf("concurrent write on %s: %w", c.EventType, txErr)}
	}
	return txErr
}

// QueryClusters filters clusters for the read surface. With an event type
// the scan is one index set; without, it walks every known event type.
func (s *Store) QueryClusters(ctx context.Context, q cluster.ClusterQuery) ([]domain.Cluster, error) {
	types := []domain.EventType{domain.EventFire, domain.EventWind, domain.EventHail, domain.EventFreeze}
	if q.EventType != "" {
		types = []domain.EventType{q.EventType}
	}

	var out []domain.Cluster
	for _, et := range types {
		ids, err := s.client.SMembers(ctx, s.clusterIndexKey(et)).Result()
		if err != nil {
			return nil, fmt.Errorf("read cluster index %s: %w", et, err)
		}
		for _, id := range ids {
			c, ok, err := s.getCluster(ctx, id)
			if err != nil {
				return nil, err
			}
			if ok && cluster.MatchesCluster(c, q) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// QuerySignals filters signals for the read surface.
func (s *Store) QuerySignals(ctx context.Context, q cluster.SignalQuery) ([]domain.Signal, error) {
	ids, err := s.client.SMembers(ctx, s.signalIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read signal index: %w", err)
	}

	var out []domain.Signal
	for _, id := range ids {
		sig, ok, err := s.getSignal(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && cluster.MatchesSignal(sig, q) {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *Store) getCluster(ctx context.Context, id string) (domain.Cluster, bool, error) {
	data, err := s.client.Get(ctx, s.clusterKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cluster{}, false, nil
	}
	if err != nil {
		return domain.Cluster{}, false, fmt.Errorf("get cluster %s: %w", id, err)
	}
	var c domain.Cluster
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cluster{}, false, fmt.Errorf("unmarshal cluster %s: %w", id, err)
	}
	return c, true, nil
}

func (s *Store) getSignal(ctx context.Context, id string) (domain.Signal, bool, error) {
	data, err := s.client.Get(ctx, s.signalKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Signal{}, false, nil
	}
	if err != nil {
		return domain.Signal{}, false, fmt.Errorf("get signal %s: %w", id, err)
	}
	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return domain.Signal{}, false, fmt.Errorf("unmarshal signal %s: %w", id, err)
	}
	return sig, true, nil
}

func (s *Store) readFence(ctx context.Context, et domain.EventType) (int64, error) {
	v, err := s.client.Get(ctx, s.fenceKey(et)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read fence %s: %w", et, err)
	}
	return v, nil
}
