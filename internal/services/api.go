package services

import (
	"fmt"

	"vidgen/config"
	"vidgen/internal/media"
	"vidgen/internal/studio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// KeySelector accepts a key picked in the browser.
type KeySelector interface {
	Select(key string)
}

type Api struct {
	server         *fiber.App
	studio         *studio.Controller
	keys           KeySelector
	media          media.Store
	hub            *Hub
	port           string
	allowedOrigins string
}

func NewApi(cfg config.ApiConfig, ctrl *studio.Controller, keys KeySelector, store media.Store, hub *Hub) *Api {
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}

	a := &Api{
		server:         fiber.New(fiber.Config{DisableStartupMessage: true}),
		studio:         ctrl,
		keys:           keys,
		media:          store,
		hub:            hub,
		port:           cfg.Port,
		allowedOrigins: cfg.AllowedOrigins,
	}

	allowCredentials := a.allowedOrigins != "*"

	a.server.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))
	a.server.Use(RequestLogger())

	a.addRoutes()
	return a
}

func (a *Api) Start() error {
	return a.server.Listen(fmt.Sprint(":", a.port))
}

func (a *Api) Shutdown() error {
	return a.server.Shutdown()
}

func (a *Api) addRoutes() {
	a.server.Add("GET", "/health", a.Health())
	a.server.Add("GET", "/state", a.State())
	a.server.Add("PUT", "/draft", a.UpdateDraft())
	a.server.Add("POST", "/generate", a.Generate())
	a.server.Add("POST", "/cancel", a.Cancel())
	a.server.Add("GET", "/credential", a.CredentialStatus())
	a.server.Add("POST", "/credential", a.SelectCredential())
	a.server.Add("GET", "/media/:id", a.Media())

	// websocket connection
	a.server.Use("/ws", a.WsUpgrade())
	a.server.Get("/ws/:id", a.Notifications())
}
