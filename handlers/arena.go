package handlers

import (
	"detective-arena/middleware"
	"detective-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupArenaRoutes(app *fiber.App, arenaService *services.ArenaService) {
	// 🔓 Public routes
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/arena/leaderboard/:cycle", arenaService.Leaderboard)
	app.Get("/arena/career/:user", arenaService.Career)

	// 🔐 Authenticated participant routes (gateway-supplied identity)
	secured := app.Group("/arena", middleware.UserContextMiddleware())
	secured.Get("/state", arenaService.State)
	secured.Post("/register", arenaService.Register)
	secured.Post("/withdraw", arenaService.Withdraw)
	secured.Post("/ready", arenaService.Ready)
	secured.Post("/matches/:id/messages", arenaService.SendMessage)
	secured.Post("/matches/:id/vote", arenaService.Vote)
	secured.Post("/matches/:id/lock", arenaService.Lock)

	// 🤖 External agent routes (JWT-bound persona controllers)
	agent := app.Group("/agent", middleware.AgentAuthMiddleware())
	agent.Post("/matches/:id/reply", arenaService.AgentReply)

	// 🔒 Admin-only routes
	admin := app.Group("/admin", middleware.UserContextMiddleware())
	admin.Post("/cycles", arenaService.OpenCycle)
	admin.Post("/personas", arenaService.CreatePersona)
}
