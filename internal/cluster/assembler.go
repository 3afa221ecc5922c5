package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/couchcryptid/loss-recon/internal/domain"
	"github.com/couchcryptid/loss-recon/internal/observability"
)

// Suppression thresholds: a brand-new single-signal cluster is not worth
// creating when both the source's trust and the observed severity are low.
// A signal corroborating anything existing is never suppressed.
const (
	suppressConfidenceBelow = 0.70
	suppressSeverityBelow   = 0.60
)

// Outcome is the disposition of one signal through the assembler.
type Outcome int

const (
	// OutcomeClustered means a new single-signal cluster was created.
	OutcomeClustered Outcome = iota
	// OutcomeMerged means the signal corroborated an existing cluster or
	// lifted a loose signal into a fresh two-signal cluster.
	OutcomeMerged
	// OutcomeSuppressed means no cluster was created; the signal is stored
	// unclustered and audited.
	OutcomeSuppressed
	// OutcomeDuplicate means the idempotence guard recognized an
	// already-ingested provider record; nothing changed.
	OutcomeDuplicate
)

// Stats accumulates per-run assembler counts.
type Stats struct {
	Processed  int
	Clustered  int
	Merged     int
	Suppressed int
	Duplicates int
	Failed     int
}

// Result is the outcome of a batch: counts plus every cluster created or
// updated, for the downstream publisher.
type Result struct {
	Stats   Stats
	Changed []domain.Cluster
}

// Assembler drives match-or-create-or-suppress for normalized signals.
type Assembler struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Assembler against a store.
func New(store Store, logger *slog.Logger, metrics *observability.Metrics) *Assembler {
	return &Assembler{store: store, logger: logger, metrics: metrics}
}

// ProcessBatch runs a batch of signals in arrival order. Per-record
// failures are logged and counted; they never abort the batch.
func (a *Assembler) ProcessBatch(ctx context.Context, sigs []domain.Signal) Result {
	var res Result
	changed := map[string]domain.Cluster{}

	for _, sig := range sigs {
		res.Stats.Processed++
		outcome, c, err := a.Process(ctx, sig)
		if err != nil {
			res.Stats.Failed++
			a.metrics.SignalsFailed.WithLabelValues(string(sig.SourceType), "assemble").Inc()
			a.logger.Error("signal assembly failed",
				"signal_id", sig.ID,
				"source_type", sig.SourceType,
				"source_name", sig.SourceName,
				"error", err,
			)
			continue
		}
		switch outcome {
		case OutcomeClustered:
			res.Stats.Clustered++
		case OutcomeMerged:
			res.Stats.Merged++
		case OutcomeSuppressed:
			res.Stats.Suppressed++
		case OutcomeDuplicate:
			res.Stats.Duplicates++
		}
		if c != nil {
			changed[c.ID] = *c
		}
	}

	for _, c := range changed {
		res.Changed = append(res.Changed, c)
	}
	return res
}

// Process runs one signal through idempotence check, duplicate matching,
// the suppression gate, and cluster creation. On a fence conflict the whole
// match-or-create is retried once against a fresh snapshot, then the signal
// is recorded as failed.
//
// Writes run on a detached context: once a signal has been matched its
// cluster write must complete even if the run's wall-clock budget just
// expired, because partial cluster writes are not permitted.
func (a *Assembler) Process(ctx context.Context, sig domain.Signal) (Outcome, *domain.Cluster, error) {
	writeCtx := context.WithoutCancel(ctx)

	inserted, err := a.store.PutSignal(writeCtx, sig)
	if err != nil {
		return 0, nil, fmt.Errorf("put signal: %w", err)
	}
	if !inserted {
		a.metrics.SignalsDuplicate.WithLabelValues(string(sig.SourceType)).Inc()
		return OutcomeDuplicate, nil, nil
	}

	outcome, c, err := a.matchOrCreate(writeCtx, sig)
	if domain.IsConflict(err) {
		a.metrics.StoreConflicts.Inc()
		a.logger.Warn("cluster write conflict, retrying once", "signal_id", sig.ID)
		outcome, c, err = a.matchOrCreate(writeCtx, sig)
	}
	if err != nil {
		return 0, nil, err
	}
	return outcome, c, nil
}

func (a *Assembler) matchOrCreate(ctx context.Context, sig domain.Signal) (Outcome, *domain.Cluster, error) {
	snap, err := a.store.Snapshot(ctx, sig.EventType)
	if err != nil {
		return 0, nil, fmt.Errorf("snapshot %s: %w", sig.EventType, err)
	}

	if cand, ok := domain.BestMatch(sig, snap.Clusters, snap.Unclustered); ok {
		if cand.Cluster != nil {
			return a.attach(ctx, snap.Fence, *cand.Cluster, sig)
		}
		return a.lift(ctx, snap.Fence, *cand.Loose, sig)
	}

	// No match: this would be a brand-new single-signal cluster, so the
	// suppression gate applies.
	if sig.SourceConfidence < suppressConfidenceBelow && sig.SeverityRaw < suppressSeverityBelow {
		a.metrics.SignalsSuppressed.WithLabelValues(string(sig.SourceType)).Inc()
		a.logger.Info("signal suppressed",
			"signal_id", sig.ID,
			"source_type", sig.SourceType,
			"source_name", sig.SourceName,
			"reason", "uncorroborated low-confidence low-severity",
			"source_confidence", sig.SourceConfidence,
			"severity", sig.SeverityRaw,
			"occurred_at", sig.OccurredAt,
		)
		return OutcomeSuppressed, nil, nil
	}

	return a.create(ctx, snap.Fence, sig)
}

// attach corroborates an existing cluster with sig.
func (a *Assembler) attach(ctx context.Context, fence int64, c domain.Cluster, sig domain.Signal) (Outcome, *domain.Cluster, error) {
	updated := mergeSignal(c.Clone(), sig)
	sig.ClusterID = updated.ID

	if err := a.store.UpdateCluster(ctx, fence, updated, sig); err != nil {
		return 0, nil, err
	}
	a.metrics.SignalsMerged.Inc()
	a.logger.Info("signal merged into cluster",
		"signal_id", sig.ID,
		"cluster_id", updated.ID,
		"score", updated.ConfidenceScore,
		"status", updated.VerificationStatus,
		"size", updated.Size(),
	)
	return OutcomeMerged, &updated, nil
}

// lift promotes a loose (previously suppressed or unmatched-without-coords)
// signal and sig into a fresh two-signal cluster.
func (a *Assembler) lift(ctx context.Context, fence int64, loose domain.Signal, sig domain.Signal) (Outcome, *domain.Cluster, error) {
	c := seedCluster(loose)
	c = mergeSignal(c, sig)
	loose.ClusterID = c.ID
	sig.ClusterID = c.ID

	if err := a.store.CreateCluster(ctx, fence, c, []domain.Signal{loose, sig}); err != nil {
		return 0, nil, err
	}
	a.metrics.ClustersCreated.Inc()
	a.metrics.SignalsMerged.Inc()
	a.logger.Info("loose signal corroborated, cluster created",
		"signal_id", sig.ID,
		"loose_signal_id", loose.ID,
		"cluster_id", c.ID,
		"score", c.ConfidenceScore,
		"status", c.VerificationStatus,
	)
	return OutcomeMerged, &c, nil
}

func (a *Assembler) create(ctx context.Context, fence int64, sig domain.Signal) (Outcome, *domain.Cluster, error) {
	c := seedCluster(sig)
	sig.ClusterID = c.ID

	if err := a.store.CreateCluster(ctx, fence, c, []domain.Signal{sig}); err != nil {
		return 0, nil, err
	}
	a.metrics.ClustersCreated.Inc()
	a.logger.Info("cluster created",
		"signal_id", sig.ID,
		"cluster_id", c.ID,
		"event_type", c.EventType,
		"score", c.ConfidenceScore,
		"status", c.VerificationStatus,
	)
	return OutcomeClustered, &c, nil
}

// seedCluster builds a singleton cluster from one signal.
func seedCluster(sig domain.Signal) domain.Cluster {
	now := domain.Now()
	c := domain.Cluster{
		ID:          uuid.NewString(),
		EventType:   sig.EventType,
		Window:      domain.TimeWindow{Start: sig.OccurredAt, End: sig.OccurredAt},
		SignalIDs:   []string{sig.ID},
		SourceTypes: []domain.SourceType{sig.SourceType},
		Annotation:  sig.Annotation,
		State:       sig.Location.State,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sig.Location.HasCoords() {
		c.ExtendCentroid(*sig.Location.Geo)
	}
	c.ConfidenceScore, c.VerificationStatus = domain.ScoreAndTier(c.SourceTypes)
	return c
}

// mergeSignal folds a corroborating signal into a cluster: running-mean
// centroid, extended window, merged annotation, rescore. Verification
// status is escalation-only; it never regresses within a run.
func mergeSignal(c domain.Cluster, sig domain.Signal) domain.Cluster {
	c.SignalIDs = append(c.SignalIDs, sig.ID)
	if !c.HasSourceType(sig.SourceType) {
		c.SourceTypes = append(c.SourceTypes, sig.SourceType)
	}
	if sig.Location.HasCoords() {
		c.ExtendCentroid(*sig.Location.Geo)
	}
	c.Window = c.Window.Extend(sig.OccurredAt)
	c.Annotation = domain.MergeAnnotations(c.Annotation, sig.Annotation)
	if c.State == "" {
		c.State = sig.Location.State
	}

	score, tier := domain.ScoreAndTier(c.SourceTypes)
	c.ConfidenceScore = score
	c.VerificationStatus = domain.MaxStatus(c.VerificationStatus, tier)
	c.UpdatedAt = domain.Now()
	return c
}
