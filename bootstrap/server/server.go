package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rc-timing/bootstrap/config"
	"rc-timing/bootstrap/mode"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
)

// RegisterServe starts the queue worker and registers the operational
// routes once PocketBase begins serving.
func RegisterServe(app *pocketbase.PocketBase, wiring mode.Wiring, flags config.Flags) {
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		// Settings must load even when this process never runs the worker
		// loop: the plan guardrails and TTL come from the same config.
		wiring.Manager.ReloadSettings()

		if flags.WorkerEnabled {
			ctx := context.Background()
			if se.Server != nil {
				workerCtx, cancel := context.WithCancel(ctx)
				se.Server.RegisterOnShutdown(cancel)
				ctx = workerCtx
			}
			wiring.Manager.StartLoops(ctx)
		} else {
			slog.Info("queue.worker.disabled", "flag", "worker-enabled")
		}

		se.Router.GET("/health", func(c *core.RequestEvent) error {
			return c.JSON(http.StatusOK, map[string]any{
				"status":    "ok",
				"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
			})
		})

		slog.Info("server.ready", "port", flags.Port, "livercAPI", flags.LiveRC, "worker", flags.WorkerEnabled)
		return se.Next()
	})
}
