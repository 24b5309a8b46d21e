package middlewares

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"

	"github.com/joshuarp/hotconfig/internal/shared/uid"
)

const ChainIDHeader = "X-Request-ID"

// NewHTTPRequestIDMiddleware keeps an incoming X-Request-ID or assigns one
// from ids. A nil ids falls back to random UUIDs.
func NewHTTPRequestIDMiddleware(ids uid.Generator) fiber.Handler {
	return requestid.New(requestid.Config{
		Header: ChainIDHeader,
		Generator: func() string {
			if ids == nil {
				return uuid.NewString()
			}
			id, err := ids.Generate(context.Background())
			if err != nil || id == "" {
				return uuid.NewString()
			}
			return id
		},
	})
}

func ChainIDFromContext(c fiber.Ctx) string {
	if chainID := requestid.FromContext(c); chainID != "" {
		return chainID
	}
	return c.Get(ChainIDHeader)
}
