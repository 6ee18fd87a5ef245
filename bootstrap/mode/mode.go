package mode

import (
	"log"

	"rc-timing/bootstrap/config"
	"rc-timing/ingest"
	"rc-timing/plan"
	"rc-timing/queue"

	"github.com/pocketbase/pocketbase"
)

// Wiring holds the long-lived services the server runs with.
type Wiring struct {
	Service *ingest.Service
	Builder *plan.Builder
	Plans   plan.Store
	Manager *queue.Manager
}

func Build(app *pocketbase.PocketBase, flags config.Flags) Wiring {
	svc, err := ingest.NewService(app, flags.LiveRC)
	if err != nil {
		log.Fatal("ingest service init:", err)
	}
	manager := queue.NewManager(app, svc, queue.Config{})
	return Wiring{
		Service: svc,
		Builder: plan.NewBuilder(app, svc.Source),
		// TTL resolves through the manager so the runtime setting applies
		// once settings are loaded at serve time.
		Plans:   plan.NewMemoryStoreFunc(manager.PlanTTL),
		Manager: manager,
	}
}
