package services

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (a *Api) WsUpgrade() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Notifications streams state snapshots to one browser tab, starting with the
// current one.
func (a *Api) Notifications() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {

		clientId := strings.TrimSpace(conn.Params("id"))
		if clientId == "" {
			conn.WriteMessage(websocket.CloseMessage, []byte("missing client id"))
			conn.Close()
			return
		}

		logger := log.With("component", "ws", "clientId", clientId)
		client := NewWSClient(clientId, conn)
		a.hub.Add(client)
		logger.Debug("client connected", "clients", a.hub.Len())

		a.hub.SendTo(clientId, StateEvent(a.studio.Snapshot()))

		go client.writeLoop()
		client.readPump(func() {
			a.hub.removeClient(client)
			logger.Debug("client disconnected")
		})
	})
}
