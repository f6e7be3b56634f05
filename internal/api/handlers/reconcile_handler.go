package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/protocol-recon/backend/internal/reconcile"
	"github.com/protocol-recon/backend/internal/view"
)

type ReconcileHandler struct {
	engine *reconcile.Engine
}

func NewReconcileHandler(engine *reconcile.Engine) *ReconcileHandler {
	return &ReconcileHandler{
		engine: engine,
	}
}

func (h *ReconcileHandler) GetCards(c *fiber.Ctx) error {
	cards, err := h.engine.Cards(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute cards")
	}
	return c.JSON(cards)
}

func (h *ReconcileHandler) GetDisciplines(c *fiber.Ctx) error {
	rows, err := h.engine.Disciplines(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute discipline breakdown")
	}
	return c.JSON(rows)
}

func (h *ReconcileHandler) GetGroups(c *fiber.Ctx) error {
	rows, err := h.engine.GroupBreakdown(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to compute group breakdown")
	}
	return c.JSON(rows)
}

func (h *ReconcileHandler) ListGroups(c *fiber.Ctx) error {
	return c.JSON(h.engine.Groups())
}

func (h *ReconcileHandler) GetSubsystems(c *fiber.Ctx) error {
	rows, err := h.engine.Subsystems(c.UserContext(), c.Query("group"))
	if err != nil {
		return respondError(c, err, "Failed to compute subsystem breakdown")
	}
	return c.JSON(rows)
}

func (h *ReconcileHandler) unmatchedQuery(c *fiber.Ctx, windowed bool) (reconcile.UnmatchedQuery, error) {
	strict, err := boolParam(c, "strict", false)
	if err != nil {
		return reconcile.UnmatchedQuery{}, err
	}
	q := reconcile.UnmatchedQuery{Strict: strict, Query: c.Query("q")}
	if !windowed {
		return q, nil
	}

	limit, err := intParam(c, "limit", 100)
	if err != nil {
		return q, err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return q, err
	}
	w, err := h.engine.UnmatchedWindow(limit, offset)
	if err != nil {
		return q, err
	}
	q.Window = &w
	return q, nil
}

func (h *ReconcileHandler) GetUnmatched(c *fiber.Ctx) error {
	q, err := h.unmatchedQuery(c, true)
	if err != nil {
		return respondError(c, err, "Invalid unmatched query")
	}
	res, err := h.engine.Unmatched(c.UserContext(), q)
	if err != nil {
		return respondError(c, err, "Failed to list unmatched transmittals")
	}
	return c.JSON(res)
}

func (h *ReconcileHandler) ExportUnmatched(c *fiber.Ctx) error {
	q, err := h.unmatchedQuery(c, false)
	if err != nil {
		return respondError(c, err, "Invalid unmatched query")
	}
	res, err := h.engine.Unmatched(c.UserContext(), q)
	if err != nil {
		return respondError(c, err, "Failed to export unmatched transmittals")
	}
	return sendCSV(c, view.UnmatchedFilename(q.Strict), reconcile.UnmatchedCSVHeader, res.Items)
}

func (h *ReconcileHandler) GetUnmatchedSummary(c *fiber.Ctx) error {
	sum, err := h.engine.UnmatchedSummary(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to summarize unmatched transmittals")
	}
	return c.JSON(sum)
}

func (h *ReconcileHandler) GetDuplicates(c *fiber.Ctx) error {
	strict, err := boolParam(c, "strict", false)
	if err != nil {
		return respondError(c, err, "Invalid duplicates query")
	}
	groups, err := h.engine.Duplicates(c.UserContext(), strict)
	if err != nil {
		return respondError(c, err, "Failed to list duplicates")
	}
	return c.JSON(fiber.Map{
		"strict": strict,
		"total":  len(groups),
		"items":  groups,
	})
}

func (h *ReconcileHandler) ExportDuplicates(c *fiber.Ctx) error {
	strict, err := boolParam(c, "strict", false)
	if err != nil {
		return respondError(c, err, "Invalid duplicates query")
	}
	groups, err := h.engine.Duplicates(c.UserContext(), strict)
	if err != nil {
		return respondError(c, err, "Failed to export duplicates")
	}
	return sendCSV(c, view.DuplicatesFilename(strict), reconcile.DuplicatesCSVHeader, groups)
}

func (h *ReconcileHandler) GetSSErrors(c *fiber.Ctx) error {
	page, err := h.pageRequest(c)
	if err != nil {
		return respondError(c, err, "Invalid pagination")
	}
	res, err := h.engine.SSErrors(c.UserContext(), &page)
	if err != nil {
		return respondError(c, err, "Failed to list subsystem errors")
	}
	return c.JSON(res)
}

func (h *ReconcileHandler) ExportSSErrors(c *fiber.Ctx) error {
	res, err := h.engine.SSErrors(c.UserContext(), nil)
	if err != nil {
		return respondError(c, err, "Failed to export subsystem errors")
	}
	return sendCSV(c, view.SSErrorsFilename, reconcile.SSErrorsCSVHeader, res.Rows)
}

func (h *ReconcileHandler) GetOptions(c *fiber.Ctx) error {
	opts, err := h.engine.Options(c.UserContext())
	if err != nil {
		return respondError(c, err, "Failed to list filter options")
	}
	return c.JSON(opts)
}

func (h *ReconcileHandler) pageRequest(c *fiber.Ctx) (view.PageRequest, error) {
	page, err := intParam(c, "page", 1)
	if err != nil {
		return view.PageRequest{}, err
	}
	size, err := intParam(c, "page_size", 50)
	if err != nil {
		return view.PageRequest{}, err
	}
	return h.engine.PageRequest(page, size)
}

func protocolFilter(c *fiber.Ctx) (view.ProtocolFilter, error) {
	f := view.ProtocolFilter{
		Subsystem:  c.Query("subsistema"),
		Discipline: c.Query("disciplina"),
		Group:      c.Query("grupo"),
		Query:      c.Query("q"),
		Status:     c.Query("status"),
	}

	var err error
	if f.Cargado, err = boolParam(c, "cargado", false); err != nil {
		return f, err
	}
	if f.ErrorSS, err = boolParam(c, "error_ss", false); err != nil {
		return f, err
	}
	if f.SinAconex, err = boolParam(c, "sin_aconex", false); err != nil {
		return f, err
	}
	return f, nil
}

func (h *ReconcileHandler) ListProtocols(c *fiber.Ctx) error {
	f, err := protocolFilter(c)
	if err != nil {
		return respondError(c, err, "Invalid protocol filter")
	}
	page, err := h.pageRequest(c)
	if err != nil {
		return respondError(c, err, "Invalid pagination")
	}

	res, err := h.engine.ProtocolList(c.UserContext(), f, page)
	if err != nil {
		return respondError(c, err, "Failed to list protocols")
	}
	return c.JSON(res)
}

func (h *ReconcileHandler) ExportProtocols(c *fiber.Ctx) error {
	f, err := protocolFilter(c)
	if err != nil {
		return respondError(c, err, "Invalid protocol filter")
	}

	rows, err := h.engine.ProtocolExport(c.UserContext(), f)
	if err != nil {
		return respondError(c, err, "Failed to export protocols")
	}
	return sendCSV(c, view.ProtocolExportFilename(&f), view.ProtocolCSVHeader, rows)
}
