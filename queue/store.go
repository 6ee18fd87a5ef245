// Package queue is the persisted import work queue. Jobs and their items
// live in PocketBase collections; workers claim jobs with a conditional
// state update, so any number of processes can poll concurrently without an
// external lock service.
package queue

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"rc-timing/ingest"
)

type JobState string

const (
	StateQueued    JobState = "QUEUED"
	StateRunning   JobState = "RUNNING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
)

// terminal states are never left.
func (s JobState) terminal() bool { return s == StateSucceeded || s == StateFailed }

const (
	TargetEvent   = "EVENT"
	TargetSession = "SESSION"
)

// ItemSpec describes one unit of work at job creation time.
type ItemSpec struct {
	TargetType string
	TargetRef  string
}

type Job struct {
	ID          string   `json:"jobId"`
	State       JobState `json:"state"`
	PlanHash    string   `json:"planHash"`
	Mode        string   `json:"mode"`
	ProgressPct float64  `json:"progressPct"`
	Message     string   `json:"message,omitempty"`
	EnqueuedAt  int64    `json:"enqueuedAt"`
}

type JobItem struct {
	ID         string         `json:"id"`
	JobID      string         `json:"jobId"`
	TargetType string         `json:"targetType"`
	TargetRef  string         `json:"targetRef"`
	State      JobState       `json:"state"`
	Message    string         `json:"message,omitempty"`
	Counts     map[string]any `json:"counts,omitempty"`
}

// ItemPatch is a partial update to one job item. Nil fields are untouched.
type ItemPatch struct {
	State   *JobState
	Message *string
	Counts  map[string]any
}

// Store persists jobs and items honoring the state machine
// QUEUED -> RUNNING -> {SUCCEEDED, FAILED}.
type Store struct {
	App core.App
}

func NewStore(app core.App) *Store { return &Store{App: app} }

// CreateJob persists a new job with all items QUEUED.
func (s *Store) CreateJob(planHash, mode string, items []ItemSpec) (*Job, error) {
	var job *Job
	err := s.App.RunInTransaction(func(tx core.App) error {
		jobsCol, err := tx.FindCollectionByNameOrId("import_jobs")
		if err != nil {
			return &ingest.PersistenceError{Op: "find import_jobs collection", Err: err}
		}
		itemsCol, err := tx.FindCollectionByNameOrId("import_job_items")
		if err != nil {
			return &ingest.PersistenceError{Op: "find import_job_items collection", Err: err}
		}

		rec := core.NewRecord(jobsCol)
		rec.Set("state", string(StateQueued))
		rec.Set("planHash", planHash)
		rec.Set("mode", mode)
		rec.Set("progressPct", 0)
		rec.Set("enqueuedAt", time.Now().UnixMilli())
		if err := tx.Save(rec); err != nil {
			return &ingest.PersistenceError{Op: "save import job", Err: err}
		}

		for _, it := range items {
			itemRec := core.NewRecord(itemsCol)
			itemRec.Set("job", rec.Id)
			itemRec.Set("targetType", it.TargetType)
			itemRec.Set("targetRef", it.TargetRef)
			itemRec.Set("state", string(StateQueued))
			if err := tx.Save(itemRec); err != nil {
				return &ingest.PersistenceError{Op: "save import job item", Err: err}
			}
		}

		job = jobFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// TakeNextQueuedJob claims the oldest QUEUED job. The transition to RUNNING
// is a conditional update that only succeeds if the row is still QUEUED at
// the moment of the write; losing the race to another worker is not an
// error and returns (nil, nil), the same as an empty queue.
func (s *Store) TakeNextQueuedJob() (*Job, error) {
	var claimedID string
	err := s.App.RunInTransaction(func(tx core.App) error {
		var row struct {
			ID string `db:"id"`
		}
		q := `SELECT id FROM import_jobs WHERE state = {:queued} ORDER BY enqueuedAt ASC LIMIT 1`
		if err := tx.DB().NewQuery(q).Bind(dbx.Params{"queued": string(StateQueued)}).One(&row); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return &ingest.PersistenceError{Op: "select queued job", Err: err}
		}

		res, err := tx.DB().NewQuery(
			`UPDATE import_jobs SET state = {:running} WHERE id = {:id} AND state = {:queued}`,
		).Bind(dbx.Params{
			"running": string(StateRunning),
			"id":      row.ID,
			"queued":  string(StateQueued),
		}).Execute()
		if err != nil {
			return &ingest.PersistenceError{Op: "claim job " + row.ID, Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Another worker won the claim between the select and the write.
			return nil
		}
		claimedID = row.ID
		return nil
	})
	if err != nil || claimedID == "" {
		return nil, err
	}

	rec, err := s.App.FindRecordById("import_jobs", claimedID)
	if err != nil {
		return nil, &ingest.PersistenceError{Op: "load claimed job " + claimedID, Err: err}
	}
	return jobFromRecord(rec), nil
}

// UpdateJobProgress clamps pct to [0,100] and writes it.
func (s *Store) UpdateJobProgress(jobID string, pct float64) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	rec, err := s.App.FindRecordById("import_jobs", jobID)
	if err != nil {
		return &ingest.PersistenceError{Op: "load job " + jobID, Err: err}
	}
	rec.Set("progressPct", pct)
	if err := s.App.Save(rec); err != nil {
		return &ingest.PersistenceError{Op: "save job progress", Err: err}
	}
	return nil
}

// UpdateJobItem applies a partial patch to one item, independent of the
// parent job's aggregate state. State changes off a terminal item state are
// ignored.
func (s *Store) UpdateJobItem(itemID string, patch ItemPatch) error {
	rec, err := s.App.FindRecordById("import_job_items", itemID)
	if err != nil {
		return &ingest.PersistenceError{Op: "load job item " + itemID, Err: err}
	}
	if patch.State != nil {
		if cur := JobState(rec.GetString("state")); !cur.terminal() {
			rec.Set("state", string(*patch.State))
		}
	}
	if patch.Message != nil {
		rec.Set("message", *patch.Message)
	}
	if patch.Counts != nil {
		rec.Set("counts", patch.Counts)
	}
	if err := s.App.Save(rec); err != nil {
		return &ingest.PersistenceError{Op: "save job item", Err: err}
	}
	return nil
}

// MarkJobSucceeded finishes the job: job and all items SUCCEEDED, progress
// 100, message cleared. A no-op if the job is already terminal.
func (s *Store) MarkJobSucceeded(jobID string) error {
	return s.App.RunInTransaction(func(tx core.App) error {
		rec, err := tx.FindRecordById("import_jobs", jobID)
		if err != nil {
			return &ingest.PersistenceError{Op: "load job " + jobID, Err: err}
		}
		if JobState(rec.GetString("state")).terminal() {
			return nil
		}
		rec.Set("state", string(StateSucceeded))
		rec.Set("progressPct", 100)
		rec.Set("message", "")
		if err := tx.Save(rec); err != nil {
			return &ingest.PersistenceError{Op: "save job " + jobID, Err: err}
		}

		items, err := findItemRecords(tx, jobID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if JobState(it.GetString("state")).terminal() {
				continue
			}
			it.Set("state", string(StateSucceeded))
			if err := tx.Save(it); err != nil {
				return &ingest.PersistenceError{Op: "save job item " + it.Id, Err: err}
			}
		}
		return nil
	})
}

// MarkJobFailed fails the job with message. Items that already SUCCEEDED
// keep their state so partial progress stays auditable; every other item
// becomes FAILED with the same message.
func (s *Store) MarkJobFailed(jobID, message string) error {
	return s.App.RunInTransaction(func(tx core.App) error {
		rec, err := tx.FindRecordById("import_jobs", jobID)
		if err != nil {
			return &ingest.PersistenceError{Op: "load job " + jobID, Err: err}
		}
		if JobState(rec.GetString("state")).terminal() {
			return nil
		}
		rec.Set("state", string(StateFailed))
		rec.Set("message", message)
		if err := tx.Save(rec); err != nil {
			return &ingest.PersistenceError{Op: "save job " + jobID, Err: err}
		}

		items, err := findItemRecords(tx, jobID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if JobState(it.GetString("state")) == StateSucceeded {
				continue
			}
			it.Set("state", string(StateFailed))
			it.Set("message", message)
			if err := tx.Save(it); err != nil {
				return &ingest.PersistenceError{Op: "save job item " + it.Id, Err: err}
			}
		}
		return nil
	})
}

// GetJob returns one job with its items.
func (s *Store) GetJob(jobID string) (*Job, []JobItem, error) {
	rec, err := s.App.FindRecordById("import_jobs", jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, &ingest.PersistenceError{Op: "load job " + jobID, Err: err}
	}
	itemRecs, err := findItemRecords(s.App, jobID)
	if err != nil {
		return nil, nil, err
	}
	items := make([]JobItem, 0, len(itemRecs))
	for _, it := range itemRecs {
		items = append(items, itemFromRecord(it))
	}
	return jobFromRecord(rec), items, nil
}

func findItemRecords(app core.App, jobID string) ([]*core.Record, error) {
	items, err := app.FindRecordsByFilter("import_job_items", "job = {:job}", "created", 0, 0, dbx.Params{"job": jobID})
	if err != nil {
		return nil, &ingest.PersistenceError{Op: "find items for job " + jobID, Err: err}
	}
	return items, nil
}

func jobFromRecord(rec *core.Record) *Job {
	return &Job{
		ID:          rec.Id,
		State:       JobState(rec.GetString("state")),
		PlanHash:    rec.GetString("planHash"),
		Mode:        rec.GetString("mode"),
		ProgressPct: rec.GetFloat("progressPct"),
		Message:     rec.GetString("message"),
		EnqueuedAt:  int64(rec.GetFloat("enqueuedAt")),
	}
}

func itemFromRecord(rec *core.Record) JobItem {
	item := JobItem{
		ID:         rec.Id,
		JobID:      rec.GetString("job"),
		TargetType: rec.GetString("targetType"),
		TargetRef:  rec.GetString("targetRef"),
		State:      JobState(rec.GetString("state")),
		Message:    rec.GetString("message"),
	}
	var counts map[string]any
	if err := rec.UnmarshalJSONField("counts", &counts); err == nil && len(counts) > 0 {
		item.Counts = counts
	}
	return item
}
