package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"rc-timing/ingest"
	"rc-timing/plan"
)

// Job modes. A job created from a plan carries the outlap policy its
// apply request asked for.
const (
	ModeDefault        = "default"
	ModeIncludeOutlaps = "include-outlaps"
)

// Manager polls the queue and executes claimed jobs. Multiple managers (in
// one process or several) may poll the same database; mutual exclusion on a
// job comes entirely from the store's conditional claim.
type Manager struct {
	App     core.App
	Service *ingest.Service
	Store   *Store

	cfgMu sync.RWMutex
	cfg   Config

	workerTickerMu sync.Mutex
	workerTicker   *time.Ticker

	workerSlotsMu sync.RWMutex
	workerSlots   chan struct{}
}

func NewManager(app core.App, service *ingest.Service, cfg Config) *Manager {
	m := &Manager{App: app, Service: service, Store: NewStore(app)}
	m.setConfig(cfg)
	return m
}

// ReloadSettings seeds missing defaults and refreshes the runtime config
// from server_settings. Processes that never start the worker loop (an
// enqueue-only node) still need this for the plan guardrails and TTL.
func (m *Manager) ReloadSettings() {
	m.ensureDefaultSettings()
	m.setConfig(m.loadConfigFromDB())
}

// StartLoops seeds default settings and spawns the worker goroutine.
func (m *Manager) StartLoops(ctx context.Context) {
	m.ReloadSettings()
	m.resetWorkerLimiter()

	go func() {
		cfg := m.currentConfig()
		interval := cfg.WorkerInterval
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		m.setWorkerTicker(ticker)
		defer ticker.Stop()
		for {
			m.drainOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Manager) currentConfig() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// GuardrailLimits exposes the current plan guardrails to the API layer.
func (m *Manager) GuardrailLimits() plan.Limits {
	return m.currentConfig().Limits()
}

// PlanTTL exposes how long generated plans stay applicable.
func (m *Manager) PlanTTL() time.Duration {
	return m.currentConfig().PlanTTL
}

func (m *Manager) setConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()
}

func (m *Manager) setWorkerTicker(t *time.Ticker) {
	m.workerTickerMu.Lock()
	m.workerTicker = t
	m.workerTickerMu.Unlock()
}

func (m *Manager) resetWorkerLimiter() {
	cfg := m.currentConfig()
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	m.workerSlotsMu.Lock()
	defer m.workerSlotsMu.Unlock()
	if m.workerSlots != nil && cap(m.workerSlots) == limit {
		return
	}
	m.workerSlots = make(chan struct{}, limit)
}

func (m *Manager) limiter() chan struct{} {
	m.workerSlotsMu.RLock()
	defer m.workerSlotsMu.RUnlock()
	return m.workerSlots
}

// drainOnce claims and launches queued jobs up to the free worker slots.
func (m *Manager) drainOnce(ctx context.Context) {
	limiter := m.limiter()
	if limiter == nil {
		return
	}
	for cap(limiter)-len(limiter) > 0 {
		job, err := m.Store.TakeNextQueuedJob()
		if err != nil {
			slog.Warn("queue.worker.claim.error", "err", err)
			return
		}
		if job == nil {
			return
		}
		limiter <- struct{}{}
		go func(j *Job) {
			defer func() { <-limiter }()
			m.runJob(ctx, j)
		}(job)
	}
}
