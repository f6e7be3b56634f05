package validation

import (
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UploadKey is the Locals key the validated file header is stored under.
const UploadKey = "upload_file"

type Config struct {
	MaxQueryLength    int
	MaxUploadBytes    int
	FormField         string
	AllowedExtensions []string
	Logger            *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 200
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.FormField == "" {
		cfg.FormField = "file"
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".xlsx", ".xlsm"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Middleware rejects oversized or control-character search terms on every
// route.
func Middleware(cfg Config) fiber.Handler {
	cfg.defaults()

	return func(c *fiber.Ctx) error {
		q := c.Query("q")
		if len(q) > cfg.MaxQueryLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Search term exceeds maximum length",
				"field": "q",
			})
		}
		if containsControl(q) {
			cfg.Logger.Warn("Rejected search term with control characters",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid search term",
				"field": "q",
			})
		}
		return c.Next()
	}
}

// Upload checks a multipart spreadsheet upload before the handler reads it
// and leaves the file header in Locals under UploadKey.
func Upload(cfg Config) fiber.Handler {
	cfg.defaults()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Upload must be multipart/form-data",
			})
		}

		fh, err := c.FormFile(cfg.FormField)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "File is required",
				"field": cfg.FormField,
			})
		}

		if fh.Size > int64(cfg.MaxUploadBytes) {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "File exceeds maximum size",
			})
		}

		if !allowedExtension(fh, cfg.AllowedExtensions) {
			cfg.Logger.Warn("Rejected upload with unexpected extension",
				zap.String("ip", c.IP()),
				zap.String("filename", fh.Filename),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Only Excel workbooks are accepted",
				"field": cfg.FormField,
			})
		}

		fh.Filename = SanitizeFilename(fh.Filename)
		c.Locals(UploadKey, fh)
		return c.Next()
	}
}

func allowedExtension(fh *multipart.FileHeader, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// SanitizeFilename keeps only the base name and drops control characters.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

func containsControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
