package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
)

type Flags struct {
	LiveRC        string
	Port          int
	LogLevel      string
	WorkerEnabled bool
	DBDir         string
}

func ParseFlags() Flags {
	var out Flags
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&out.LiveRC, "liverc-api", "https://results.liverc.example", "LiveRC results API base URL")
	fs.IntVar(&out.Port, "port", 3000, "Server port")
	fs.StringVar(&out.LogLevel, "log-level", "info", "Log level: error|warn|info|debug|trace")
	fs.BoolVar(&out.WorkerEnabled, "worker-enabled", true, "Enable the background import worker loop")
	fs.StringVar(&out.DBDir, "db-dir", "", "Directory for SQLite database files (empty = in-memory)")

	showHelp := fs.Bool("help", false, "Show help message")
	_ = fs.Parse(os.Args[1:])
	if *showHelp {
		fmt.Printf(helpText(), os.Args[0])
		os.Exit(0)
	}
	return out
}

// PreparePocketBaseArgs rewrites the process args into the serve command
// PocketBase expects.
func PreparePocketBaseArgs(flags Flags) []string {
	return []string{"serve", "--http", fmt.Sprintf("0.0.0.0:%d", flags.Port)}
}

func NewPocketBaseApp(flags Flags) *pocketbase.PocketBase {
	var app *pocketbase.PocketBase
	if flags.DBDir == "" {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  ".",
			DBConnect: func(dbPath string) (*dbx.DB, error) {
				base := filepath.Base(dbPath)
				dsn := "file:" + base + "?mode=memory&cache=shared"
				db, err := dbx.Open("sqlite", dsn)
				if err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA foreign_keys=ON;").Execute(); err != nil {
					return nil, err
				}
				if _, err := db.NewQuery("PRAGMA busy_timeout=1000;").Execute(); err != nil {
					return nil, err
				}
				return db, nil
			},
		})
	} else {
		app = pocketbase.NewWithConfig(pocketbase.Config{
			HideStartBanner: true,
			DefaultDataDir:  flags.DBDir,
		})
	}
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{Automigrate: true})
	return app
}

func helpText() string {
	return `
Usage: %s [OPTIONS]

Options:
  --liverc-api string      LiveRC results API base URL
  --port int               Set the server port (default: 3000)
  --log-level string       Log level: error|warn|info|debug|trace
  --worker-enabled bool    Enable the background import worker loop (default: true)
  --db-dir string          Directory for SQLite database files (empty = in-memory)
  --help                   Show this help message

Environment Variables:
  SUPERUSER_EMAIL          Seed superuser email for the admin endpoints
  SUPERUSER_PASSWORD       Seed superuser password
  LOG_FILE                 Also write plain-text logs to this path

Endpoints:
  POST /import/plans                      Compute an import plan
  POST /import/plans/{planId}/apply       Enqueue a job for an accepted plan
  GET  /import/jobs/{jobId}               Inspect job progress
  POST /import/race                       Synchronous single-race import
  PocketBase API at /api/*, Admin UI at /_/

Examples:
  rc-timing --liverc-api="https://results.liverc.com" --port=4000
  rc-timing --db-dir=./data
`
}
