package handlers

import (
	"bufio"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/ingestion"
	"github.com/protocol-recon/backend/internal/locking"
	"github.com/protocol-recon/backend/internal/reconcile"
	"github.com/protocol-recon/backend/internal/storage/sqlite"
	"github.com/protocol-recon/backend/internal/view"
	"github.com/protocol-recon/backend/pkg/circuitbreaker"
	"github.com/protocol-recon/backend/pkg/logger"
)

// respondError maps an operation error onto a status code. msg is the body
// text for unexpected failures.
func respondError(c *fiber.Ctx, err error, msg string) error {
	var (
		validationErr *view.ValidationError
		missingErr    *ingestion.MissingColumnsError
		dataErr       *sqlite.DataError
	)

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &missingErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   missingErr.Error(),
			"missing": missingErr.Columns,
		})
	case errors.As(err, &dataErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": dataErr.Error(),
			"row":   dataErr.Row,
			"field": dataErr.Field,
		})
	case errors.Is(err, ingestion.ErrInvalidWorkbook):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, reconcile.ErrNoPrimaryData):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, locking.ErrLockTimeout):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Another upload for this source is in progress",
		})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Lock service unavailable",
		})
	}

	logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func invalidParam(field, message string) error {
	return &view.ValidationError{Field: field, Message: message}
}

func intParam(c *fiber.Ctx, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name, "must be an integer")
	}
	return n, nil
}

func boolParam(c *fiber.Ctx, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(name, "must be true or false")
	}
	return b, nil
}

type csvRecord interface {
	CSV() []string
}

// sendCSV streams rows as a semicolon-delimited attachment. Rows are computed
// before the call so every error is reported with a proper status.
func sendCSV[T csvRecord](c *fiber.Ctx, filename string, header []string, rows []T) error {
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, view.ContentDisposition(filename))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		cw, err := view.NewCSVWriter(w, header)
		if err != nil {
			logger.Error("Failed to start csv stream", zap.String("filename", filename), zap.Error(err))
			return
		}
		for _, r := range rows {
			if err := cw.Write(r.CSV()); err != nil {
				logger.Error("Failed to write csv row", zap.String("filename", filename), zap.Error(err))
				return
			}
		}
		if err := cw.Flush(); err != nil {
			logger.Error("Failed to flush csv stream", zap.String("filename", filename), zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			logger.Debug("Client went away during csv stream", zap.String("filename", filename), zap.Error(err))
		}
	})
	return nil
}
