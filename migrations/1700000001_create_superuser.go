package migrations

import (
	"log/slog"
	"os"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Seeds the superuser account used by the import admin endpoints.
// Credentials come from the environment so deployments can bootstrap
// without touching the PocketBase UI.
func init() {
	m.Register(func(app core.App) error {
		email := os.Getenv("SUPERUSER_EMAIL")
		password := os.Getenv("SUPERUSER_PASSWORD")
		if email == "" || password == "" {
			slog.Info("migration.create_superuser.skipped",
				"reason", "environment variables not set",
				"SUPERUSER_EMAIL", email != "",
				"SUPERUSER_PASSWORD", password != "")
			return nil
		}

		superusers, err := app.FindCollectionByNameOrId(core.CollectionNameSuperusers)
		if err != nil {
			return err
		}

		if existing, _ := app.FindAuthRecordByEmail(core.CollectionNameSuperusers, email); existing != nil {
			slog.Info("migration.create_superuser.skipped",
				"reason", "superuser already exists",
				"email", email)
			return nil
		}

		record := core.NewRecord(superusers)
		record.Set("email", email)
		record.Set("password", password)
		if err := app.Save(record); err != nil {
			return err
		}

		slog.Info("migration.create_superuser.created", "email", email)
		return nil
	}, func(app core.App) error {
		email := os.Getenv("SUPERUSER_EMAIL")
		if email == "" {
			return nil
		}
		record, _ := app.FindAuthRecordByEmail(core.CollectionNameSuperusers, email)
		if record == nil {
			return nil
		}
		if err := app.Delete(record); err != nil {
			return err
		}
		slog.Info("migration.create_superuser.revert.deleted", "email", email)
		return nil
	})
}
