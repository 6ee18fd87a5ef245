package queue

import (
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"rc-timing/plan"
)

// Config tunes the queue worker and the plan guardrails. Values live in the
// server_settings collection so operators can adjust them at runtime.
type Config struct {
	WorkerInterval   time.Duration
	Concurrency      int
	MaxEvents        int
	MaxEstimatedLaps int
	PlanTTL          time.Duration
	RetryMaxAttempts int
}

// Limits exposes the plan guardrails portion of the config.
func (c Config) Limits() plan.Limits {
	return plan.Limits{MaxEvents: c.MaxEvents, MaxEstimatedLaps: c.MaxEstimatedLaps}
}

func (m *Manager) ensureDefaultSettings() {
	defaults := map[string]string{
		"queue.workerIntervalMs": "500",
		"queue.concurrency":      "1",
		"queue.maxEvents":        "12",
		"queue.maxEstimatedLaps": "20000",
		"queue.planTtlSeconds":   "600",
		"queue.retryMaxAttempts": "3",
	}
	col, err := m.App.FindCollectionByNameOrId("server_settings")
	if err != nil {
		return
	}
	for k, v := range defaults {
		rec, _ := m.App.FindFirstRecordByFilter("server_settings", "key = {:k}", dbx.Params{"k": k})
		if rec == nil {
			rec = core.NewRecord(col)
			rec.Set("key", k)
			rec.Set("value", v)
			_ = m.App.Save(rec)
		}
	}
}

func (m *Manager) loadConfigFromDB() Config {
	readInt := func(key string, def int) int {
		rec, err := m.App.FindFirstRecordByFilter("server_settings", "key = {:k}", dbx.Params{"k": key})
		if err != nil || rec == nil {
			return def
		}
		var n int
		if _, err := fmt.Sscanf(rec.GetString("value"), "%d", &n); err == nil {
			return n
		}
		return def
	}
	return Config{
		WorkerInterval:   time.Duration(readInt("queue.workerIntervalMs", 500)) * time.Millisecond,
		Concurrency:      readInt("queue.concurrency", 1),
		MaxEvents:        readInt("queue.maxEvents", 12),
		MaxEstimatedLaps: readInt("queue.maxEstimatedLaps", 20000),
		PlanTTL:          time.Duration(readInt("queue.planTtlSeconds", 600)) * time.Second,
		RetryMaxAttempts: readInt("queue.retryMaxAttempts", 3),
	}
}
