package ingest

import (
	"context"
	"errors"
	"testing"

	_ "rc-timing/migrations"

	"github.com/pocketbase/pocketbase/tests"

	"rc-timing/liverc"
)

type fakeSource struct {
	entries    []liverc.EntryListEntry
	entriesErr error
	doc        liverc.RaceResultDoc
	docErr     error
}

func (f *fakeSource) FetchEntryList(ctx context.Context, eventSlug, classSlug string) ([]liverc.EntryListEntry, error) {
	return f.entries, f.entriesErr
}

func (f *fakeSource) FetchRaceResult(ctx context.Context, eventSlug, classSlug, roundSlug, raceSlug string) (liverc.RaceResultDoc, error) {
	return f.doc, f.docErr
}

func testRef(t *testing.T) liverc.ParsedRef {
	t.Helper()
	ref, err := liverc.ParseRef("https://www.liverc.com/results/summer-cup/pro-buggy/round-1/a-main.json")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	return ref
}

func lapsFor(entryID string, times ...float64) []liverc.RaceLap {
	laps := make([]liverc.RaceLap, 0, len(times))
	for i, s := range times {
		laps = append(laps, liverc.RaceLap{EntryID: entryID, LapNumber: i + 1, LapTimeSeconds: s})
	}
	return laps
}

func countRecords(t *testing.T, app *tests.TestApp, collection string) int64 {
	t.Helper()
	n, err := app.CountRecords(collection)
	if err != nil {
		t.Fatalf("count %s: %v", collection, err)
	}
	return n
}

func TestImportRaceEndToEnd(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	src := &fakeSource{
		entries: []liverc.EntryListEntry{
			{EntryID: "e1", DisplayName: "Alice Race"},
			{EntryID: "e2", DisplayName: "Bob Fast"},
		},
		doc: liverc.RaceResultDoc{
			RaceID:    "9001",
			RoundID:   "12",
			ClassName: "Pro Buggy",
			RaceName:  "A Main",
			Laps: append(
				lapsFor("e1", 31.2, 30.8, 31.5),
				lapsFor("e3", 32.0, 33.0)...,
			),
		},
	}
	svc := NewServiceWithSource(app, src)

	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("ImportRace: %v", err)
	}

	if summary.EntrantsProcessed != 1 {
		t.Errorf("entrantsProcessed = %d, want 1", summary.EntrantsProcessed)
	}
	if summary.LapsImported != 3 {
		t.Errorf("lapsImported = %d, want 3", summary.LapsImported)
	}
	if summary.SkippedEntrantCount != 1 {
		t.Errorf("skippedEntrantCount = %d, want 1", summary.SkippedEntrantCount)
	}
	if summary.SkippedLapCount != 2 {
		t.Errorf("skippedLapCount = %d, want 2", summary.SkippedLapCount)
	}
	if summary.SkippedOutlapCount != 0 {
		t.Errorf("skippedOutlapCount = %d, want 0", summary.SkippedOutlapCount)
	}
	if summary.EventName != "Summer Cup" || summary.RaceClassName != "Pro Buggy" || summary.SessionName != "A Main" {
		t.Errorf("resolved names wrong: %+v", summary)
	}
	if summary.RaceID != "9001" || summary.RoundID != "12" {
		t.Errorf("upstream ids wrong: %+v", summary)
	}

	if n := countRecords(t, app, "laps"); n != 3 {
		t.Errorf("persisted laps = %d, want 3", n)
	}
	if n := countRecords(t, app, "entrants"); n != 1 {
		t.Errorf("persisted entrants = %d, want 1", n)
	}
}

func TestImportRaceIdempotent(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	src := &fakeSource{
		entries: []liverc.EntryListEntry{{EntryID: "e1", DisplayName: "Alice Race"}},
		doc: liverc.RaceResultDoc{
			RaceID: "9001",
			Laps:   lapsFor("e1", 31.2, 30.8, 31.5),
		},
	}
	svc := NewServiceWithSource(app, src)

	first, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if first != second {
		t.Errorf("summaries differ:\nfirst  %+v\nsecond %+v", first, second)
	}
	if n := countRecords(t, app, "laps"); n != 3 {
		t.Errorf("laps grew across identical imports: %d", n)
	}
	if n := countRecords(t, app, "events"); n != 1 {
		t.Errorf("events duplicated: %d", n)
	}
	if n := countRecords(t, app, "sessions"); n != 1 {
		t.Errorf("sessions duplicated: %d", n)
	}
}

func TestImportRaceReplacesLapsOnCorrection(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	src := &fakeSource{
		entries: []liverc.EntryListEntry{{EntryID: "e1", DisplayName: "Alice Race"}},
		doc:     liverc.RaceResultDoc{RaceID: "9001", Laps: lapsFor("e1", 31.2, 30.8, 31.5)},
	}
	svc := NewServiceWithSource(app, src)
	if _, err := svc.ImportRace(context.Background(), testRef(t), false); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Upstream correction drops a lap; the re-import must converge to it.
	src.doc = liverc.RaceResultDoc{RaceID: "9001", Laps: lapsFor("e1", 31.0, 30.5)}
	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if summary.LapsImported != 2 {
		t.Errorf("lapsImported = %d, want 2", summary.LapsImported)
	}
	if n := countRecords(t, app, "laps"); n != 2 {
		t.Errorf("persisted laps = %d, want 2 after correction", n)
	}
}

func TestImportRaceOutlapFiltering(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	laps := lapsFor("e1", 31.2, 30.8)
	laps = append(laps, liverc.RaceLap{EntryID: "e1", LapNumber: 3, LapTimeSeconds: 45.0, Outlap: true})
	src := &fakeSource{
		entries: []liverc.EntryListEntry{{EntryID: "e1", DisplayName: "Alice Race"}},
		doc:     liverc.RaceResultDoc{Laps: laps},
	}
	svc := NewServiceWithSource(app, src)

	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("ImportRace: %v", err)
	}
	if summary.LapsImported != 2 || summary.SkippedOutlapCount != 1 || summary.SkippedLapCount != 0 {
		t.Errorf("outlap exclusion wrong: %+v", summary)
	}

	withOutlaps, err := svc.ImportRace(context.Background(), testRef(t), true)
	if err != nil {
		t.Fatalf("ImportRace with outlaps: %v", err)
	}
	if withOutlaps.LapsImported != 3 || withOutlaps.SkippedOutlapCount != 0 {
		t.Errorf("includeOutlaps wrong: %+v", withOutlaps)
	}
}

func TestImportRaceNonPositiveLapTime(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	laps := lapsFor("e1", 31.2)
	laps = append(laps,
		liverc.RaceLap{EntryID: "e1", LapNumber: 2, LapTimeSeconds: 0},
		liverc.RaceLap{EntryID: "e1", LapNumber: 3, LapTimeSeconds: -1.5},
	)
	src := &fakeSource{
		entries: []liverc.EntryListEntry{{EntryID: "e1", DisplayName: "Alice Race"}},
		doc:     liverc.RaceResultDoc{Laps: laps},
	}
	svc := NewServiceWithSource(app, src)

	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("ImportRace: %v", err)
	}
	if summary.LapsImported != 1 || summary.SkippedLapCount != 2 {
		t.Errorf("zero-time exclusion wrong: %+v", summary)
	}
}

func TestImportRaceWithdrawnEntrantSilentlySkipped(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	src := &fakeSource{
		entries: []liverc.EntryListEntry{
			{EntryID: "e1", DisplayName: "Alice Race"},
			{EntryID: "e2", DisplayName: "Bob Fast", Withdrawn: true},
		},
		doc: liverc.RaceResultDoc{
			Laps: append(lapsFor("e1", 31.2), lapsFor("e2", 35.5, 36.0)...),
		},
	}
	svc := NewServiceWithSource(app, src)

	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("ImportRace: %v", err)
	}
	if summary.EntrantsProcessed != 1 || summary.LapsImported != 1 {
		t.Errorf("expected only the active entrant imported: %+v", summary)
	}
	if summary.SkippedEntrantCount != 0 || summary.SkippedLapCount != 0 {
		t.Errorf("withdrawn entrant must not count as an anomaly: %+v", summary)
	}
}

func TestImportRaceNameFallbackMatch(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	src := &fakeSource{
		entries: []liverc.EntryListEntry{{DisplayName: "Alice Race"}},
		doc: liverc.RaceResultDoc{
			Laps: []liverc.RaceLap{
				{DriverName: "Alice Race", LapNumber: 1, LapTimeSeconds: 31.2},
				{DriverName: "Alice Race", LapNumber: 2, LapTimeSeconds: 30.9},
			},
		},
	}
	svc := NewServiceWithSource(app, src)

	summary, err := svc.ImportRace(context.Background(), testRef(t), false)
	if err != nil {
		t.Fatalf("ImportRace: %v", err)
	}
	if summary.EntrantsProcessed != 1 || summary.LapsImported != 2 {
		t.Errorf("display-name fallback failed: %+v", summary)
	}
}

func TestImportRaceUpstreamFailureAbortsWithNoWrites(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	wantErr := &liverc.UpstreamStatusError{URL: "https://example/results", Status: 502}
	src := &fakeSource{
		entries: []liverc.EntryListEntry{{EntryID: "e1", DisplayName: "Alice Race"}},
		docErr:  wantErr,
	}
	svc := NewServiceWithSource(app, src)

	_, err = svc.ImportRace(context.Background(), testRef(t), false)
	var status *liverc.UpstreamStatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if n := countRecords(t, app, "events"); n != 0 {
		t.Errorf("events written despite aborted import: %d", n)
	}
	if n := countRecords(t, app, "laps"); n != 0 {
		t.Errorf("laps written despite aborted import: %d", n)
	}
}

func TestLapSourceIDDeterministic(t *testing.T) {
	a := LapSourceID("ev1", "sess1", "9001", "summer-cup/pro-buggy/round-1/a-main/e1", 3)
	b := LapSourceID("ev1", "sess1", "9001", "summer-cup/pro-buggy/round-1/a-main/e1", 3)
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char id, got %d", len(a))
	}
	if c := LapSourceID("ev1", "sess1", "9001", "summer-cup/pro-buggy/round-1/a-main/e1", 4); c == a {
		t.Fatalf("different lap numbers must hash differently")
	}
}

func TestHumanizeSlug(t *testing.T) {
	cases := map[string]string{
		"summer-cup":  "Summer Cup",
		"pro_buggy":   "Pro Buggy",
		"a-main":      "A Main",
		"été-gp":      "Été Gp",
		"østersø-cup": "Østersø Cup",
	}
	for slug, want := range cases {
		if got := humanizeSlug(slug); got != want {
			t.Errorf("humanizeSlug(%q) = %q, want %q", slug, got, want)
		}
	}
}
