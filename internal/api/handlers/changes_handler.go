package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/protocol-recon/backend/internal/delta"
	"github.com/protocol-recon/backend/internal/view"
)

type ChangesHandler struct {
	engine *delta.Engine
}

func NewChangesHandler(engine *delta.Engine) *ChangesHandler {
	return &ChangesHandler{
		engine: engine,
	}
}

func (h *ChangesHandler) GetChanges(c *fiber.Ctx) error {
	changes, err := h.engine.Changes(c.UserContext(), c.Query("group"))
	if err != nil {
		return respondError(c, err, "Failed to compute subsystem changes")
	}
	return c.JSON(changes)
}

func (h *ChangesHandler) ExportChanges(c *fiber.Ctx) error {
	group := c.Query("group")
	changes, err := h.engine.Changes(c.UserContext(), group)
	if err != nil {
		return respondError(c, err, "Failed to export subsystem changes")
	}
	return sendCSV(c, view.ChangesFilename(group), delta.CSVHeader, changes)
}

func (h *ChangesHandler) GetSummary(c *fiber.Ctx) error {
	sum, err := h.engine.Summary(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to summarize changes")
	}
	return c.JSON(sum)
}
