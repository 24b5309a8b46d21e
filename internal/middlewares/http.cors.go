package middlewares

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

// NewHTTPCORSMiddleware allows read-only cross-origin access to the
// inspection API.
func NewHTTPCORSMiddleware(allowOrigins []string) fiber.Handler {
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	return cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: []string{"Origin", "Accept", ChainIDHeader},
		AllowMethods: []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions},
	})
}
