package ingest

import (
	"context"

	"rc-timing/liverc"
)

// Source abstracts where we fetch LiveRC-style result documents from.
type Source interface {
	FetchEntryList(ctx context.Context, eventSlug, classSlug string) ([]liverc.EntryListEntry, error)
	FetchRaceResult(ctx context.Context, eventSlug, classSlug, roundSlug, raceSlug string) (liverc.RaceResultDoc, error)
}

// DirectSource wraps the HTTP client.
type DirectSource struct{ C *liverc.Client }

func (d DirectSource) FetchEntryList(ctx context.Context, eventSlug, classSlug string) ([]liverc.EntryListEntry, error) {
	return d.C.FetchEntryList(ctx, eventSlug, classSlug)
}

func (d DirectSource) FetchRaceResult(ctx context.Context, eventSlug, classSlug, roundSlug, raceSlug string) (liverc.RaceResultDoc, error) {
	return d.C.FetchRaceResult(ctx, eventSlug, classSlug, roundSlug, raceSlug)
}
