package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Adds collections used by the import job queue:
// - import_jobs: one row per accepted import plan, claimed by workers
// - import_job_items: per-target work units and status within one job
// - server_settings: generic key/value settings for runtime tuning
func init() {
	m.Register(func(app core.App) error {
		jobs := core.NewBaseCollection("import_jobs")
		jobs.Fields.Add(
			&core.TextField{Name: "state", Required: true, Max: 16, Presentable: true},
			&core.TextField{Name: "planHash", Max: 64},
			&core.TextField{Name: "mode", Max: 32},
			&core.NumberField{Name: "progressPct"},
			&core.TextField{Name: "message", Max: 1024},
			&core.NumberField{Name: "enqueuedAt"}, // epoch millis, claim ordering
		)
		jobs.AddIndex("ix_import_jobs_state_enqueued", false, "state, enqueuedAt", "")
		jobs.ListRule = types.Pointer("")
		jobs.ViewRule = types.Pointer("")
		if err := app.Save(jobs); err != nil {
			return err
		}

		items := core.NewBaseCollection("import_job_items")
		items.Fields.Add(
			&core.RelationField{Name: "job", CollectionId: jobs.Id, MaxSelect: 1, Required: true, CascadeDelete: true},
			&core.TextField{Name: "targetType", Required: true, Max: 16},
			&core.TextField{Name: "targetRef", Required: true, Max: 512, Presentable: true},
			&core.TextField{Name: "state", Required: true, Max: 16},
			&core.TextField{Name: "message", Max: 1024},
			&core.JSONField{Name: "counts", MaxSize: 2048},
		)
		items.AddIndex("ix_import_job_items_job", false, "job", "")
		items.ListRule = types.Pointer("")
		items.ViewRule = types.Pointer("")
		if err := app.Save(items); err != nil {
			return err
		}

		settings := core.NewBaseCollection("server_settings")
		settings.Fields.Add(
			&core.TextField{Name: "key", Required: true, Max: 128, Presentable: true},
			&core.TextField{Name: "value", Max: 8192},
		)
		settings.AddIndex("ux_server_settings_key", true, "key", "")
		settings.ListRule = types.Pointer("")
		settings.ViewRule = types.Pointer("")
		return app.Save(settings)
	}, func(app core.App) error {
		for _, name := range []string{"import_job_items", "import_jobs", "server_settings"} {
			if col, _ := app.FindCollectionByNameOrId(name); col != nil {
				if err := app.Delete(col); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
