package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Reconcile *ReconcileHandler
	Changes   *ChangesHandler
	Uploads   *UploadHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler
}

// Register mounts every route on api. uploadGuards run before the upload
// handlers, in order.
func Register(api fiber.Router, h Handlers, uploadGuards ...fiber.Handler) {
	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	api.Get("/groups", h.Reconcile.ListGroups)

	m := api.Group("/metrics")
	m.Get("/cards", h.Reconcile.GetCards)
	m.Get("/disciplinas", h.Reconcile.GetDisciplines)
	m.Get("/grupos", h.Reconcile.GetGroups)
	m.Get("/subsistemas", h.Reconcile.GetSubsystems)
	m.Get("/subsistemas/changes", h.Changes.GetChanges)
	m.Get("/subsistemas/changes.csv", h.Changes.ExportChanges)
	m.Get("/changes/summary", h.Changes.GetSummary)

	a := api.Group("/aconex")
	a.Get("/unmatched", h.Reconcile.GetUnmatched)
	a.Get("/unmatched.csv", h.Reconcile.ExportUnmatched)
	a.Get("/unmatched/summary", h.Reconcile.GetUnmatchedSummary)
	a.Get("/duplicates", h.Reconcile.GetDuplicates)
	a.Get("/duplicates.csv", h.Reconcile.ExportDuplicates)
	a.Get("/ss-errors", h.Reconcile.GetSSErrors)

	api.Get("/apsa/options", h.Reconcile.GetOptions)
	api.Get("/apsa/list", h.Reconcile.ListProtocols)

	api.Get("/export/apsa.csv", h.Reconcile.ExportProtocols)
	api.Get("/export/aconex-ss-errors.csv", h.Reconcile.ExportSSErrors)

	api.Get("/loads", h.Uploads.ListLoads)

	admin := api.Group("/admin")
	admin.Post("/upload/apsa", chain(uploadGuards, h.Uploads.UploadPrimary)...)
	admin.Post("/upload/aconex", chain(uploadGuards, h.Uploads.UploadSecondary)...)
	admin.Delete("/loads/:source", h.Uploads.ResetSource)

	api.Get("/ws/events", h.WebSocket.Upgrade, websocket.New(h.WebSocket.HandleConnection))
}

func chain(guards []fiber.Handler, last fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	out = append(out, guards...)
	return append(out, last)
}
