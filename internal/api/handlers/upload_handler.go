package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/ingestion"
	"github.com/protocol-recon/backend/internal/middleware/validation"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/pkg/logger"
)

type SnapshotLister interface {
	ListSnapshots(ctx context.Context, source models.Source) ([]models.Snapshot, error)
}

type UploadHandler struct {
	processor *ingestion.Processor
	snapshots SnapshotLister
}

func NewUploadHandler(processor *ingestion.Processor, snapshots SnapshotLister) *UploadHandler {
	return &UploadHandler{
		processor: processor,
		snapshots: snapshots,
	}
}

func (h *UploadHandler) UploadPrimary(c *fiber.Ctx) error {
	return h.upload(c, models.SourcePrimary)
}

func (h *UploadHandler) UploadSecondary(c *fiber.Ctx) error {
	return h.upload(c, models.SourceSecondary)
}

func (h *UploadHandler) upload(c *fiber.Ctx, source models.Source) error {
	fh, ok := c.Locals(validation.UploadKey).(*multipart.FileHeader)
	if !ok {
		var err error
		if fh, err = c.FormFile("file"); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "File is required",
				"field": "file",
			})
		}
	}

	content, err := readUpload(fh)
	if err != nil {
		logger.Error("Failed to read upload", zap.String("filename", fh.Filename), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	up := ingestion.Upload{Source: source, Filename: fh.Filename, Content: content}
	if c.Query("hard") != "" {
		hard, err := boolParam(c, "hard", false)
		if err != nil {
			return respondError(c, err, "Invalid upload parameters")
		}
		up.Hard = &hard
	}

	res, err := h.processor.Ingest(c.UserContext(), up)
	if err != nil {
		return respondError(c, err, "Failed to ingest upload")
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}

func (h *UploadHandler) ListLoads(c *fiber.Ctx) error {
	var source models.Source
	if raw := c.Query("source"); raw != "" {
		s, err := models.ParseSource(raw)
		if err != nil {
			return respondError(c, invalidParam("source", "must be APSA or ACONEX"), "Invalid source")
		}
		source = s
	}

	snaps, err := h.snapshots.ListSnapshots(c.UserContext(), source)
	if err != nil {
		return respondError(c, err, "Failed to list loads")
	}
	return c.JSON(snaps)
}

func (h *UploadHandler) ResetSource(c *fiber.Ctx) error {
	source, err := models.ParseSource(c.Params("source"))
	if err != nil {
		return respondError(c, invalidParam("source", "must be APSA or ACONEX"), "Invalid source")
	}

	deleted, err := h.processor.Reset(c.UserContext(), source)
	if err != nil {
		return respondError(c, err, "Failed to reset source")
	}
	return c.JSON(fiber.Map{
		"ok":      true,
		"source":  source,
		"deleted": deleted,
	})
}
