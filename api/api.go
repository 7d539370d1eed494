// Package api serves the engine controller as a JSON HTTP API and streams
// its state over a websocket.
package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/version"
)

type Options struct {
	Timeout time.Duration // how long a request waits for the engine
	Verbose bool          // log every request
}

// New builds the fiber app. The hub must be running for /ws/state to
// answer.
func New(ctrl *engine.Controller, hub *Hub, o Options) *fiber.App {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	h := NewHandler(ctrl, validator.New(), o.Timeout)

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if o.Verbose {
		app.Use(logger.New(logger.Config{
			Format: "[api] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.VersionOrHash,
			"halted":  ctrl.State().Halted,
		})
	})

	api := app.Group("/api")
	api.Get("/state", h.State)
	api.Get("/position", h.Position)
	api.Get("/plugins", h.Plugins)

	tracks := api.Group("/tracks")
	tracks.Post("/", h.CreateTrack)
	tracks.Post("/delete", h.DeleteTracks)
	tracks.Patch("/:id", h.UpdateTrack)
	tracks.Delete("/:id", h.DeleteTrack)
	tracks.Post("/:id/plugins", h.LoadPlugin)
	tracks.Post("/:id/plugins/move", h.MovePlugin)
	tracks.Delete("/:id/plugins/:slot", h.RemovePlugin)
	tracks.Put("/:id/plugins/:slot/params/:port", h.SetParameter)
	tracks.Put("/:id/pattern", h.AssignPattern)
	tracks.Post("/:id/notes", h.PlayNote)
	api.Put("/armed", h.Arm)

	patterns := api.Group("/patterns")
	patterns.Post("/", h.CreatePattern)
	patterns.Delete("/:id", h.DeletePattern)
	patterns.Post("/:id/events", h.AddEvent)
	patterns.Put("/:id/events/:index", h.MoveEvent)
	patterns.Delete("/:id/events/:index", h.RemoveEvent)

	transport := api.Group("/transport")
	transport.Post("/start", h.Start)
	transport.Post("/stop", h.Stop)
	transport.Put("/tempo", h.SetTempo)
	transport.Put("/position", h.Seek)
	transport.Put("/loop", h.SetLoop)
	transport.Delete("/loop", h.ClearLoop)
	api.Put("/metronome", h.SetMetronome)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(hub.HandleConnection))

	return app
}
