package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/joshuarp/hotconfig/internal/reloadify"
)

// ConfigReader exposes the registry to the HTTP layer.
type ConfigReader interface {
	Entries() []reloadify.Entry
	Value(id reloadify.ConfigID) (any, error)
}

type ConfigValuesHandler struct {
	reader ConfigReader
	logger *slog.Logger
}

func NewConfigValuesHandler(reader ConfigReader, logger *slog.Logger) *ConfigValuesHandler {
	return &ConfigValuesHandler{reader: reader, logger: logger}
}

func (h *ConfigValuesHandler) Register(router fiber.Router) {
	router.Get("/configs", h.List)
	router.Get("/configs/:id", h.Get)
}

func (h *ConfigValuesHandler) List(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"configs": h.reader.Entries(),
	})
}

func (h *ConfigValuesHandler) Get(c fiber.Ctx) error {
	id := reloadify.ConfigID(c.Params("id"))

	value, err := h.reader.Value(id)
	if err != nil {
		switch {
		case errors.Is(err, reloadify.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "config not found",
			})
		case errors.Is(err, reloadify.ErrTypeMismatch):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "config is not readable as a document",
			})
		}

		h.logger.Error("failed to read config", "config_id", id.String(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":    id,
		"value": value,
	})
}
