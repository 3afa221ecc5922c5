// Package ingest drives scheduled reconciliation runs: one fetch-normalize-
// resolve-assemble pass per configured source, all sources concurrent
// against the shared cluster store.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/loss-recon/internal/cluster"
	"github.com/couchcryptid/loss-recon/internal/domain"
	"github.com/couchcryptid/loss-recon/internal/observability"
	"github.com/couchcryptid/loss-recon/internal/source"
)

// Publisher pushes changed clusters to the downstream feed. A nil Publisher
// disables publishing.
type Publisher interface {
	PublishClusters(ctx context.Context, clusters []domain.Cluster) error
}

// Config are the per-run knobs, passed explicitly at construction; there is
// no ambient global configuration.
type Config struct {
	// RunBudget is the wall-clock budget per source run. Zero disables it.
	// An exhausted budget stops intake of new signals; assembled clusters
	// are still flushed.
	RunBudget time.Duration

	FetchAttempts   int
	FetchBackoff    time.Duration
	FetchMaxBackoff time.Duration
}

// RunSummary is the operator-facing outcome of one source's run. Failures
// are always visible here and in the audit log; a failed run never
// masquerades as "zero events occurred".
type RunSummary struct {
	Source        string
	SourceType    domain.SourceType
	Fetched       int
	FetchAttempts int
	Dropped       int
	Stats         cluster.Stats
	Duration      time.Duration
	Err           error
}

// Coordinator runs each configured source through the reconciliation
// pipeline.
type Coordinator struct {
	fetchers  []source.Fetcher
	resolver  domain.Resolver
	assembler *cluster.Assembler
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	cfg       Config
	ran       atomic.Bool
}

// New creates a Coordinator. resolver and publisher may be nil to disable
// location resolution and downstream publishing.
func New(
	fetchers []source.Fetcher,
	resolver domain.Resolver,
	assembler *cluster.Assembler,
	publisher Publisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
	cfg Config,
) *Coordinator {
	if cfg.FetchAttempts < 1 {
		cfg.FetchAttempts = 3
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = 200 * time.Millisecond
	}
	if cfg.FetchMaxBackoff <= 0 {
		cfg.FetchMaxBackoff = 5 * time.Second
	}
	return &Coordinator{
		fetchers:  fetchers,
		resolver:  resolver,
		assembler: assembler,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// CheckReadiness returns nil once at least one full run has completed.
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	if !c.ran.Load() {
		return errors.New("no reconciliation run has completed yet")
	}
	return nil
}

// RunEvery runs immediately, then on every interval tick, until the context
// is cancelled.
func (c *Coordinator) RunEvery(ctx context.Context, interval time.Duration) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes one run per source, concurrently. Independent sources
// race against the shared store; the store's fenced writes keep two runs
// from creating two clusters for one real event.
func (c *Coordinator) RunOnce(ctx context.Context) []RunSummary {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		summaries []RunSummary
	)

	for _, f := range c.fetchers {
		wg.Add(1)
		go func(f source.Fetcher) {
			defer wg.Done()
			summary := c.runSource(ctx, f)
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	c.ran.Store(true)
	return summaries
}

// runSource is one source's batch: fetch with bounded retry, normalize and
// resolve each record, then assemble. Record-level failures never abort the
// batch.
func (c *Coordinator) runSource(ctx context.Context, f source.Fetcher) RunSummary {
	start := time.Now()
	c.metrics.RunsActive.Inc()
	defer c.metrics.RunsActive.Dec()

	summary := RunSummary{Source: f.Name(), SourceType: f.Type()}
	defer func() {
		summary.Duration = time.Since(start)
		c.metrics.RunDuration.Observe(summary.Duration.Seconds())
		c.logRun(summary)
	}()

	runCtx := ctx
	if c.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.RunBudget)
		defer cancel()
	}

	res := source.FetchWithRetry(runCtx, f, c.cfg.FetchAttempts, c.cfg.FetchBackoff, c.cfg.FetchMaxBackoff)
	summary.FetchAttempts = res.Attempts
	if res.Outcome != source.OutcomeOK {
		summary.Err = res.Err
		c.metrics.SignalsFailed.WithLabelValues(string(f.Type()), "fetch").Inc()
		if domain.IsConfiguration(res.Err) {
			c.logger.Error("source run aborted, configuration error",
				"source", f.Name(), "error", res.Err)
		} else {
			c.logger.Error("source fetch failed",
				"source", f.Name(), "attempts", res.Attempts, "error", res.Err)
		}
		return summary
	}

	summary.Fetched = len(res.Records)
	c.metrics.BatchSize.Observe(float64(len(res.Records)))

	// Intake phase: normalize and annotate. The run budget gates intake,
	// not the flush of what is already assembled.
	batch := make([]domain.Signal, 0, len(res.Records))
	for i, raw := range res.Records {
		if runCtx.Err() != nil {
			c.logger.Warn("run budget exhausted, stopping intake",
				"source", f.Name(), "remaining", len(res.Records)-i)
			break
		}

		sig, ok, err := domain.Normalize(f.Type(), f.Name(), raw, domain.Now())
		if err != nil {
			summary.Stats.Failed++
			c.metrics.SignalsFailed.WithLabelValues(string(f.Type()), "normalize").Inc()
			c.logger.Warn("record failed normalization",
				"source", f.Name(),
				"source_type", f.Type(),
				"reason", err.Error(),
				"reported_at", domain.Now(),
			)
			continue
		}
		if !ok {
			summary.Dropped++
			c.metrics.SignalsDropped.WithLabelValues(string(f.Type())).Inc()
			continue
		}

		c.metrics.SignalsIngested.WithLabelValues(string(f.Type())).Inc()
		sig = domain.AnnotateSignal(runCtx, sig, c.resolver, c.logger)
		batch = append(batch, sig)
	}

	result := c.assembler.ProcessBatch(runCtx, batch)
	summary.Stats.Processed = result.Stats.Processed
	summary.Stats.Clustered = result.Stats.Clustered
	summary.Stats.Merged = result.Stats.Merged
	summary.Stats.Suppressed = result.Stats.Suppressed
	summary.Stats.Duplicates = result.Stats.Duplicates
	summary.Stats.Failed += result.Stats.Failed

	c.publish(ctx, f.Name(), result.Changed)
	return summary
}

// publish pushes changed clusters downstream on a detached context: a
// cancelled run still flushes what it assembled.
func (c *Coordinator) publish(ctx context.Context, sourceName string, changed []domain.Cluster) {
	if c.publisher == nil || len(changed) == 0 {
		return
	}
	if err := c.publisher.PublishClusters(context.WithoutCancel(ctx), changed); err != nil {
		c.logger.Error("cluster publish failed",
			"source", sourceName, "clusters", len(changed), "error", err)
	}
}

func (c *Coordinator) logRun(s RunSummary) {
	c.logger.Info("source run complete",
		"source", s.Source,
		"source_type", s.SourceType,
		"fetched", s.Fetched,
		"fetch_attempts", s.FetchAttempts,
		"processed", s.Stats.Processed,
		"clustered", s.Stats.Clustered,
		"merged", s.Stats.Merged,
		"suppressed", s.Stats.Suppressed,
		"duplicates", s.Stats.Duplicates,
		"dropped", s.Dropped,
		"failed", s.Stats.Failed,
		"duration", s.Duration,
	)
}
