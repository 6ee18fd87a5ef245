package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Canonical racing data model: events > race_classes > sessions > entrants > laps.
// Every collection keys upstream identity by the composite (source, sourceId)
// unique index so re-ingesting the same upstream document is an update, not
// a duplicate.
func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "source", Max: 32},
			&core.TextField{Name: "sourceId", Required: true, Max: 128},
			&core.TextField{Name: "name", Required: true, Max: 255, Presentable: true},
			&core.TextField{Name: "slug", Max: 128},
		)
		events.AddIndex("ux_events_source", true, "source, sourceId", "")
		events.ListRule = types.Pointer("")
		events.ViewRule = types.Pointer("")
		if err := app.Save(events); err != nil {
			return err
		}

		classes := core.NewBaseCollection("race_classes")
		classes.Fields.Add(
			&core.TextField{Name: "source", Max: 32},
			&core.TextField{Name: "sourceId", Required: true, Max: 192},
			&core.TextField{Name: "name", Required: true, Max: 255, Presentable: true},
			&core.TextField{Name: "slug", Max: 128},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
		)
		classes.AddIndex("ux_race_classes_source", true, "source, sourceId", "")
		classes.ListRule = types.Pointer("")
		classes.ViewRule = types.Pointer("")
		if err := app.Save(classes); err != nil {
			return err
		}

		sessions := core.NewBaseCollection("sessions")
		sessions.Fields.Add(
			&core.TextField{Name: "source", Max: 32},
			&core.TextField{Name: "sourceId", Required: true, Max: 255},
			&core.TextField{Name: "name", Max: 255, Presentable: true},
			&core.TextField{Name: "roundSlug", Max: 128},
			&core.TextField{Name: "raceSlug", Max: 128},
			&core.TextField{Name: "raceId", Max: 64},  // upstream race identifier
			&core.TextField{Name: "roundId", Max: 64}, // upstream round identifier
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "raceClass", CollectionId: classes.Id, MaxSelect: 1, CascadeDelete: true},
			&core.NumberField{Name: "lapCount"},
			&core.NumberField{Name: "scheduledLaps"},
			&core.BoolField{Name: "lapsComplete"},
		)
		sessions.AddIndex("ux_sessions_source", true, "source, sourceId", "")
		sessions.ListRule = types.Pointer("")
		sessions.ViewRule = types.Pointer("")
		if err := app.Save(sessions); err != nil {
			return err
		}

		entrants := core.NewBaseCollection("entrants")
		entrants.Fields.Add(
			&core.TextField{Name: "source", Max: 32},
			&core.TextField{Name: "sourceId", Required: true, Max: 320},
			&core.TextField{Name: "displayName", Required: true, Max: 255, Presentable: true},
			&core.TextField{Name: "carNumber", Max: 16},
			&core.TextField{Name: "transponderId", Max: 64},
			&core.BoolField{Name: "withdrawn"},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "raceClass", CollectionId: classes.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "session", CollectionId: sessions.Id, MaxSelect: 1, CascadeDelete: true},
		)
		entrants.AddIndex("ux_entrants_source", true, "source, sourceId", "")
		entrants.ListRule = types.Pointer("")
		entrants.ViewRule = types.Pointer("")
		if err := app.Save(entrants); err != nil {
			return err
		}

		laps := core.NewBaseCollection("laps")
		laps.Fields.Add(
			&core.TextField{Name: "source", Max: 32},
			&core.TextField{Name: "sourceId", Required: true, Max: 64},
			&core.NumberField{Name: "lapNumber", Required: true},
			&core.NumberField{Name: "lapTimeSeconds"},
			&core.BoolField{Name: "outlap"},
			&core.JSONField{Name: "penalties", MaxSize: 2048},
			&core.RelationField{Name: "entrant", CollectionId: entrants.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "session", CollectionId: sessions.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
		)
		laps.AddIndex("ux_laps_source", true, "source, sourceId", "")
		laps.AddIndex("ix_laps_entrant_session", false, "entrant, session", "")
		laps.ListRule = types.Pointer("")
		laps.ViewRule = types.Pointer("")
		return app.Save(laps)
	}, func(app core.App) error {
		for _, name := range []string{"laps", "entrants", "sessions", "race_classes", "events"} {
			if col, _ := app.FindCollectionByNameOrId(name); col != nil {
				if err := app.Delete(col); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
