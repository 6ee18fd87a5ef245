package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rc-timing/ingest"
	"rc-timing/liverc"
)

// runJob executes every item of a claimed job in order, keeping the item
// records and job progress durable after each step so a crashed worker
// leaves an auditable partial state.
func (m *Manager) runJob(ctx context.Context, job *Job) {
	slog.Info("queue.job.start", "jobId", job.ID, "mode", job.Mode)

	_, items, err := m.Store.GetJob(job.ID)
	if err != nil {
		slog.Warn("queue.job.load.error", "jobId", job.ID, "err", err)
		_ = m.Store.MarkJobFailed(job.ID, fmt.Sprintf("load job items: %v", err))
		return
	}
	if len(items) == 0 {
		_ = m.Store.MarkJobSucceeded(job.ID)
		return
	}

	includeOutlaps := job.Mode == ModeIncludeOutlaps
	failures := 0
	firstFailure := ""
	for i, item := range items {
		if item.State.terminal() {
			continue
		}
		running := StateRunning
		if err := m.Store.UpdateJobItem(item.ID, ItemPatch{State: &running}); err != nil {
			slog.Warn("queue.job.item.update.error", "jobId", job.ID, "itemId", item.ID, "err", err)
		}

		summary, err := m.runItem(ctx, item, includeOutlaps)
		if err != nil {
			failures++
			msg := err.Error()
			if firstFailure == "" {
				firstFailure = msg
			}
			failed := StateFailed
			_ = m.Store.UpdateJobItem(item.ID, ItemPatch{State: &failed, Message: &msg})
			slog.Warn("queue.job.item.failed", "jobId", job.ID, "itemId", item.ID, "targetRef", item.TargetRef, "err", err)
		} else {
			succeeded := StateSucceeded
			_ = m.Store.UpdateJobItem(item.ID, ItemPatch{
				State: &succeeded,
				Counts: map[string]any{
					"entrantsProcessed":   summary.EntrantsProcessed,
					"lapsImported":        summary.LapsImported,
					"skippedLapCount":     summary.SkippedLapCount,
					"skippedEntrantCount": summary.SkippedEntrantCount,
					"skippedOutlapCount":  summary.SkippedOutlapCount,
				},
			})
		}

		pct := float64(i+1) * 100 / float64(len(items))
		if err := m.Store.UpdateJobProgress(job.ID, pct); err != nil {
			slog.Warn("queue.job.progress.error", "jobId", job.ID, "err", err)
		}
	}

	if failures == 0 {
		if err := m.Store.MarkJobSucceeded(job.ID); err != nil {
			slog.Warn("queue.job.finish.error", "jobId", job.ID, "err", err)
		}
		slog.Info("queue.job.done", "jobId", job.ID, "items", len(items))
		return
	}
	msg := firstFailure
	if failures > 1 {
		msg = fmt.Sprintf("%d of %d items failed; first: %s", failures, len(items), firstFailure)
	}
	if err := m.Store.MarkJobFailed(job.ID, msg); err != nil {
		slog.Warn("queue.job.finish.error", "jobId", job.ID, "err", err)
	}
	slog.Info("queue.job.failed", "jobId", job.ID, "items", len(items), "failures", failures)
}

// runItem imports one target. Upstream fetch failures are retried with
// bounded exponential backoff; every other failure is permanent for this
// attempt and lands on the item record.
func (m *Manager) runItem(ctx context.Context, item JobItem, includeOutlaps bool) (ingest.ImportSummary, error) {
	ref, err := liverc.ParseRef(item.TargetRef)
	if err != nil {
		return ingest.ImportSummary{}, err
	}

	cfg := m.currentConfig()
	attempts := cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	return backoff.RetryWithData(func() (ingest.ImportSummary, error) {
		summary, err := m.Service.ImportRace(ctx, ref, includeOutlaps)
		if err != nil && !liverc.IsUpstreamError(err) {
			return summary, backoff.Permanent(err)
		}
		return summary, err
	}, policy)
}
