package ingest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/sync/errgroup"

	"rc-timing/liverc"
)

const nameKeyPrefix = "name:"

// ImportRace reconciles one upstream race into the canonical model.
//
// Entry list and race result are fetched in parallel; both are required, so
// either failure aborts with no writes. All database work runs in a single
// transaction: event, class, and session are resolved by idempotent upsert,
// laps are grouped per entrant, filtered, and each surviving entrant's lap
// set is replaced wholesale. Re-importing the same payload converges to the
// identical stored state.
func (s *Service) ImportRace(ctx context.Context, ref liverc.ParsedRef, includeOutlaps bool) (ImportSummary, error) {
	slog.Debug("import.race.start", "ref", ref.CanonicalPath(), "includeOutlaps", includeOutlaps)

	var (
		entries []liverc.EntryListEntry
		doc     liverc.RaceResultDoc
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.Source.FetchEntryList(gctx, ref.EventSlug, ref.ClassSlug)
		return err
	})
	g.Go(func() error {
		var err error
		doc, err = s.Source.FetchRaceResult(gctx, ref.EventSlug, ref.ClassSlug, ref.RoundSlug, ref.RaceSlug)
		return err
	})
	if err := g.Wait(); err != nil {
		return ImportSummary{SourceURL: ref.CanonicalPath(), IncludeOutlaps: includeOutlaps}, err
	}

	summary := ImportSummary{
		RaceID:         doc.RaceID,
		RoundID:        doc.RoundID,
		SourceURL:      ref.CanonicalPath(),
		IncludeOutlaps: includeOutlaps,
	}

	err := s.App.RunInTransaction(func(tx core.App) error {
		u := NewUpserter(tx)

		eventName := humanizeSlug(ref.EventSlug)
		eventID, err := u.Upsert("events", ref.EventSlug, map[string]any{
			"name": eventName,
			"slug": ref.EventSlug,
		})
		if err != nil {
			return err
		}

		className := doc.ClassName
		if className == "" {
			className = humanizeSlug(ref.ClassSlug)
		}
		classID, err := u.Upsert("race_classes", ref.ClassSourceID(), map[string]any{
			"name":  className,
			"slug":  ref.ClassSlug,
			"event": eventID,
		})
		if err != nil {
			return err
		}

		sessionName := doc.RaceName
		if sessionName == "" {
			sessionName = humanizeSlug(ref.RoundSlug) + " " + humanizeSlug(ref.RaceSlug)
		}
		sessionID, err := u.Upsert("sessions", ref.SessionSourceID(), map[string]any{
			"name":          sessionName,
			"roundSlug":     ref.RoundSlug,
			"raceSlug":      ref.RaceSlug,
			"raceId":        doc.RaceID,
			"roundId":       doc.RoundID,
			"scheduledLaps": doc.ScheduledLaps,
			"event":         eventID,
			"raceClass":     classID,
		})
		if err != nil {
			return err
		}

		byID := make(map[string]liverc.EntryListEntry, len(entries))
		byName := make(map[string]liverc.EntryListEntry, len(entries))
		for _, e := range entries {
			if e.EntryID != "" {
				byID[e.EntryID] = e
			}
			if e.DisplayName != "" {
				byName[e.DisplayName] = e
			}
		}

		// Group surviving laps per entrant. Laps without an entry id key by
		// driver name so timing systems that publish no ids still match.
		groups := make(map[string][]liverc.RaceLap)
		for _, lap := range doc.Laps {
			if lap.Outlap && !includeOutlaps {
				summary.SkippedOutlapCount++
				continue
			}
			if lap.LapTimeSeconds <= 0 {
				summary.SkippedLapCount++
				continue
			}
			key := lap.EntryID
			if key == "" {
				key = nameKeyPrefix + lap.DriverName
			}
			groups[key] = append(groups[key], lap)
		}

		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		totalLaps := 0
		for _, key := range keys {
			group := groups[key]
			sort.Slice(group, func(i, j int) bool { return group[i].LapNumber < group[j].LapNumber })

			var entry liverc.EntryListEntry
			var ok bool
			if name, isName := strings.CutPrefix(key, nameKeyPrefix); isName {
				entry, ok = byName[name]
			} else {
				entry, ok = byID[key]
			}
			if !ok {
				summary.SkippedEntrantCount++
				summary.SkippedLapCount += len(group)
				slog.Warn("import.race.unmatchedEntrant",
					"ref", ref.CanonicalPath(), "entry", key, "laps", len(group))
				continue
			}
			if entry.Withdrawn {
				continue
			}

			entrantSourceID := EntrantSourceID(ref.SessionSourceID(), entry.EntryID, entry.DisplayName)
			entrantID, err := u.Upsert("entrants", entrantSourceID, map[string]any{
				"displayName":   entry.DisplayName,
				"carNumber":     entry.CarNumber,
				"transponderId": entry.TransponderID,
				"withdrawn":     entry.Withdrawn,
				"event":         eventID,
				"raceClass":     classID,
				"session":       sessionID,
			})
			if err != nil {
				return err
			}

			// Replace the entrant's whole lap set for this session so a
			// corrected upstream payload never leaves stale laps behind.
			if err := deleteEntrantLaps(tx, entrantID, sessionID); err != nil {
				return err
			}
			for _, lap := range group {
				lapSourceID := LapSourceID(eventID, sessionID, doc.RaceID, entrantSourceID, lap.LapNumber)
				if _, err := u.Upsert("laps", lapSourceID, map[string]any{
					"lapNumber":      lap.LapNumber,
					"lapTimeSeconds": lap.LapTimeSeconds,
					"outlap":         lap.Outlap,
					"penalties":      lap.Penalties,
					"entrant":        entrantID,
					"session":        sessionID,
					"event":          eventID,
				}); err != nil {
					return err
				}
			}

			summary.EntrantsProcessed++
			summary.LapsImported += len(group)
			totalLaps += len(group)
		}

		// Stamp the session with what this import established.
		sessRec, err := tx.FindRecordById("sessions", sessionID)
		if err != nil {
			return &PersistenceError{Op: "load sessions/" + sessionID, Err: err}
		}
		sessRec.Set("lapCount", totalLaps)
		sessRec.Set("lapsComplete", totalLaps > 0)
		if err := tx.Save(sessRec); err != nil {
			return &PersistenceError{Op: "save sessions/" + sessionID, Err: err}
		}

		summary.EventID = eventID
		summary.EventName = eventName
		summary.RaceClassID = classID
		summary.RaceClassName = className
		summary.SessionID = sessionID
		summary.SessionName = sessionName
		return nil
	})
	if err != nil {
		return ImportSummary{SourceURL: ref.CanonicalPath(), IncludeOutlaps: includeOutlaps}, err
	}

	slog.Info("import.race.done",
		"ref", ref.CanonicalPath(),
		"entrants", summary.EntrantsProcessed,
		"laps", summary.LapsImported,
		"skippedLaps", summary.SkippedLapCount,
		"skippedEntrants", summary.SkippedEntrantCount,
		"skippedOutlaps", summary.SkippedOutlapCount)
	return summary, nil
}

func deleteEntrantLaps(tx core.App, entrantID, sessionID string) error {
	existing, err := tx.FindRecordsByFilter("laps", "entrant = {:entrant} && session = {:session}", "", 0, 0, dbx.Params{
		"entrant": entrantID,
		"session": sessionID,
	})
	if err != nil {
		return &PersistenceError{Op: "find laps for entrant " + entrantID, Err: err}
	}
	for _, rec := range existing {
		if err := tx.Delete(rec); err != nil {
			return &PersistenceError{Op: "delete lap " + rec.Id, Err: err}
		}
	}
	return nil
}

// humanizeSlug turns "summer-cup" into "Summer Cup" for display names the
// upstream documents do not carry.
func humanizeSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
