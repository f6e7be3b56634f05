package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'self'; " +
		"img-src 'self' data:; " +
		"connect-src 'self' " + buildConnectSrc(cfg.AllowedOrigins) + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

// CORSOrigins renders the allowed origins for the cors middleware. An empty
// list allows any origin.
func CORSOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}

// ExposedHeaders lists response headers browsers may read cross-origin;
// the dashboard needs Content-Disposition to name CSV downloads.
const ExposedHeaders = "Content-Disposition"

func buildConnectSrc(origins []string) string {
	var parts []string
	for _, origin := range origins {
		parts = append(parts, origin)
		if strings.HasPrefix(origin, "http") {
			parts = append(parts, "ws"+strings.TrimPrefix(origin, "http"))
		}
	}
	return strings.Join(parts, " ")
}
