package plan

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"rc-timing/ingest"
	"rc-timing/liverc"
)

// NominalLapsPerSession is the heuristic lap count per driver used when no
// authoritative lap data has been persisted yet.
const NominalLapsPerSession = 8

// Builder computes an import plan against persisted state, consulting the
// upstream entry list for references that have never been imported.
type Builder struct {
	App    core.App
	Source ingest.Source
}

func NewBuilder(app core.App, src ingest.Source) *Builder {
	return &Builder{App: app, Source: src}
}

// BuildPlan sizes and classifies every requested reference.
// A malformed reference fails the whole plan; the caller must correct it.
func (b *Builder) BuildPlan(ctx context.Context, req Request) (Plan, error) {
	p := Plan{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Items:       make([]Item, 0, len(req.Events)),
	}
	for _, ev := range req.Events {
		ref, err := liverc.ParseRef(ev.EventRef)
		if err != nil {
			return Plan{}, err
		}
		item, err := b.buildItem(ctx, ev.EventRef, ref)
		if err != nil {
			return Plan{}, err
		}
		p.Items = append(p.Items, item)
	}
	slog.Debug("plan.build.done", "planId", p.ID, "items", len(p.Items))
	return p, nil
}

func (b *Builder) buildItem(ctx context.Context, rawRef string, ref liverc.ParsedRef) (Item, error) {
	item := Item{EventRef: rawRef}

	eventID, err := b.existingID("events", ref.EventSlug)
	if err != nil {
		return Item{}, err
	}
	if eventID == "" {
		// Nothing persisted yet: size from the upstream entry list.
		entries, err := b.Source.FetchEntryList(ctx, ref.EventSlug, ref.ClassSlug)
		if err != nil {
			return Item{}, err
		}
		drivers := activeEntries(entries)
		item.Status = StatusNew
		item.Counts = Counts{
			Sessions:      1,
			Drivers:       drivers,
			EstimatedLaps: drivers * NominalLapsPerSession,
		}
		return item, nil
	}

	sessions, err := b.count(`SELECT COUNT(*) AS n FROM sessions WHERE event = {:event}`, dbx.Params{"event": eventID})
	if err != nil {
		return Item{}, err
	}
	complete, err := b.count(`SELECT COUNT(*) AS n FROM sessions WHERE event = {:event} AND lapsComplete = 1`, dbx.Params{"event": eventID})
	if err != nil {
		return Item{}, err
	}
	drivers, err := b.count(`SELECT COUNT(DISTINCT displayName) AS n FROM entrants WHERE event = {:event}`, dbx.Params{"event": eventID})
	if err != nil {
		return Item{}, err
	}
	laps, err := b.count(`SELECT COUNT(*) AS n FROM laps WHERE event = {:event}`, dbx.Params{"event": eventID})
	if err != nil {
		return Item{}, err
	}

	sessionID, err := b.existingID("sessions", ref.SessionSourceID())
	if err != nil {
		return Item{}, err
	}

	item.Counts = Counts{Sessions: sessions, Drivers: drivers, EstimatedLaps: laps}
	if item.Counts.Sessions == 0 {
		item.Counts.Sessions = 1
	}
	if item.Counts.EstimatedLaps == 0 {
		item.Counts.EstimatedLaps = drivers * item.Counts.Sessions * NominalLapsPerSession
	}

	switch {
	case sessionID != "" && sessions > 0 && sessions == complete:
		item.Status = StatusExisting
	default:
		item.Status = StatusPartial
	}
	return item, nil
}

func (b *Builder) existingID(collection, sourceID string) (string, error) {
	id, err := ingest.NewUpserter(b.App).GetExistingId(collection, sourceID)
	if err != nil {
		if ingest.IsEntityNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (b *Builder) count(query string, params dbx.Params) (int, error) {
	var row struct {
		N int64 `db:"n"`
	}
	if err := b.App.DB().NewQuery(query).Bind(params).One(&row); err != nil {
		return 0, &ingest.PersistenceError{Op: "plan count query", Err: err}
	}
	return int(row.N), nil
}

func activeEntries(entries []liverc.EntryListEntry) int {
	n := 0
	for _, e := range entries {
		if !e.Withdrawn {
			n++
		}
	}
	return n
}
