package validation

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func uploadApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Post("/upload", Upload(cfg), func(c *fiber.Ctx) error {
		fh := c.Locals(UploadKey).(*multipart.FileHeader)
		return c.SendString(fh.Filename)
	})
	return app
}

func TestUploadAccepted(t *testing.T) {
	body, ct := multipartBody(t, "file", `C:\fakepath\apsa.xlsx`, []byte("data"))
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", ct)

	resp, err := uploadApp(Config{}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, "apsa.xlsx", buf.String())
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
		cfg      Config
		status   int
	}{
		{"missing file", "other", "apsa.xlsx", []byte("x"), Config{}, fiber.StatusBadRequest},
		{"wrong extension", "file", "apsa.csv", []byte("x"), Config{}, fiber.StatusBadRequest},
		{"too large", "file", "apsa.xlsx", bytes.Repeat([]byte("x"), 64), Config{MaxUploadBytes: 10}, fiber.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.filename, tt.content)
			req := httptest.NewRequest("POST", "/upload", body)
			req.Header.Set("Content-Type", ct)

			resp, err := uploadApp(tt.cfg).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestUploadRequiresMultipart(t *testing.T) {
	req := httptest.NewRequest("POST", "/upload", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := uploadApp(Config{}).Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestMiddlewareSearchTerm(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQueryLength: 5}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := map[string]int{
		"abc":    fiber.StatusOK,
		"abcdef": fiber.StatusBadRequest,
		"a\x00b": fiber.StatusBadRequest,
		"":       fiber.StatusOK,
	}
	for q, status := range tests {
		resp, err := app.Test(httptest.NewRequest("GET", "/?q="+url.QueryEscape(q), nil))
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, "q=%q", q)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "apsa.xlsx", SanitizeFilename("../../apsa.xlsx"))
	assert.Equal(t, "apsa.xlsx", SanitizeFilename("dir\\apsa\x00.xlsx"))
}
