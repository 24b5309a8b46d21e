package app

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/fx"

	"github.com/joshuarp/hotconfig/internal/handlers"
	"github.com/joshuarp/hotconfig/internal/middlewares"
	"github.com/joshuarp/hotconfig/internal/shared/config"
	"github.com/joshuarp/hotconfig/internal/shared/uid"
)

type routerGroupsOut struct {
	fx.Out
	Public fiber.Router `name:"api_public"`
}

func provideRouterGroups(
	app *fiber.App,
	cfg config.ConfigProvider,
	logger *slog.Logger,
	ids uid.Generator,
) routerGroupsOut {
	app.Use(middlewares.NewHTTPRecoveryMiddleware(logger))
	app.Use(middlewares.NewHTTPRequestIDMiddleware(ids))
	app.Use(middlewares.NewHTTPCORSMiddleware(cfg.GetStringSlice("server.cors.allow_origins")))
	app.Use(middlewares.NewHTTPRequestResponseLogMiddleware(logger))

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	return routerGroupsOut{
		Public: app.Group("/api/v1"),
	}
}

type configRoutesIn struct {
	fx.In
	Public  fiber.Router `name:"api_public"`
	Handler *handlers.ConfigValuesHandler
}

func registerConfigRoutes(in configRoutesIn) {
	in.Handler.Register(in.Public)
}
