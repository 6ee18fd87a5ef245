// Package api wires the import endpoints onto the PocketBase router.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"rc-timing/ingest"
	"rc-timing/liverc"
	"rc-timing/plan"
	"rc-timing/queue"
)

type applyRequest struct {
	IncludeOutlaps bool `json:"includeOutlaps"`
}

type importRequest struct {
	EventRef       string `json:"eventRef"`
	IncludeOutlaps bool   `json:"includeOutlaps"`
}

// RegisterRoutes wires the admin-only import endpoints under /import/*.
func RegisterRoutes(app core.App, svc *ingest.Service, builder *plan.Builder, plans plan.Store, manager *queue.Manager) {
	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		se.Router.POST("/import/plans", func(c *core.RequestEvent) error {
			if err := requireSuperuser(c); err != nil {
				return err
			}
			var req plan.Request
			if err := c.BindBody(&req); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST"})
			}
			if len(req.Events) == 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST", "detail": "no events requested"})
			}
			p, err := builder.BuildPlan(c.Request.Context(), req)
			if err != nil {
				return writeError(c, err)
			}
			plans.Put(p, req)
			return c.JSON(http.StatusOK, p)
		})

		se.Router.POST("/import/plans/{planId}/apply", func(c *core.RequestEvent) error {
			if err := requireSuperuser(c); err != nil {
				return err
			}
			var req applyRequest
			if err := c.BindBody(&req); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST"})
			}

			planID := c.Request.PathValue("planId")
			p, origReq, err := plans.Get(planID)
			switch {
			case errors.Is(err, plan.ErrPlanExpired):
				// Recompute from the original request rather than failing.
				slog.Info("api.plan.apply.recompute", "planId", planID)
				p, err = builder.BuildPlan(c.Request.Context(), origReq)
				if err != nil {
					return writeError(c, err)
				}
			case errors.Is(err, plan.ErrPlanNotFound):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "PLAN_NOT_FOUND"})
			case err != nil:
				return writeError(c, err)
			}

			limits := manager.GuardrailLimits()
			if err := plan.CheckGuardrails(p.Items, limits); err != nil {
				var ge *plan.GuardrailError
				if errors.As(err, &ge) {
					return c.JSON(http.StatusBadRequest, map[string]any{
						"error":         "PLAN_GUARDRAILS_EXCEEDED",
						"eventCount":    ge.EventCount,
						"estimatedLaps": ge.EstimatedLaps,
						"limits":        ge.Limits,
						"suggestions":   map[string]int{"chunkCount": ge.SuggestedChunks},
					})
				}
				return writeError(c, err)
			}

			mode := queue.ModeDefault
			if req.IncludeOutlaps {
				mode = queue.ModeIncludeOutlaps
			}
			items := make([]queue.ItemSpec, 0, len(p.Items))
			for _, it := range p.Items {
				items = append(items, queue.ItemSpec{TargetType: queue.TargetSession, TargetRef: it.EventRef})
			}
			job, err := manager.Store.CreateJob(plan.Hash(p), mode, items)
			if err != nil {
				return writeError(c, err)
			}
			plans.Delete(planID)
			slog.Info("api.plan.applied", "planId", planID, "jobId", job.ID, "items", len(items))
			return c.JSON(http.StatusAccepted, map[string]string{"jobId": job.ID})
		})

		se.Router.GET("/import/jobs/{jobId}", func(c *core.RequestEvent) error {
			if err := requireSuperuser(c); err != nil {
				return err
			}
			job, items, err := manager.Store.GetJob(c.Request.PathValue("jobId"))
			if err != nil {
				return writeError(c, err)
			}
			if job == nil {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "JOB_NOT_FOUND"})
			}
			return c.JSON(http.StatusOK, map[string]any{
				"jobId":       job.ID,
				"state":       job.State,
				"progressPct": job.ProgressPct,
				"message":     job.Message,
				"items":       items,
			})
		})

		se.Router.POST("/import/race", func(c *core.RequestEvent) error {
			if err := requireSuperuser(c); err != nil {
				return err
			}
			var req importRequest
			if err := c.BindBody(&req); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST"})
			}
			ref, err := liverc.ParseRef(req.EventRef)
			if err != nil {
				return writeError(c, err)
			}
			summary, err := svc.ImportRace(c.Request.Context(), ref, req.IncludeOutlaps)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(http.StatusOK, summary)
		})

		return se.Next()
	})
}

// requireSuperuser returns a non-nil error for anything but an
// authenticated superuser, so callers can bail out of the handler.
func requireSuperuser(c *core.RequestEvent) error {
	info, err := c.RequestInfo()
	if err != nil || info.Auth == nil || !info.Auth.IsSuperuser() {
		return apis.NewUnauthorizedError("admin only", nil)
	}
	return nil
}

// writeError maps the error taxonomy onto HTTP responses: invalid
// references are the caller's to fix, upstream failures are retryable
// gateway errors, anything else is internal.
func writeError(c *core.RequestEvent, err error) error {
	switch {
	case liverc.IsInvalidRef(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "INVALID_REFERENCE", "detail": err.Error()})
	case liverc.IsUpstreamError(err):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "UPSTREAM_ERROR", "detail": err.Error()})
	default:
		slog.Warn("api.request.error", "path", c.Request.URL.Path, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "INTERNAL", "detail": err.Error()})
	}
}
