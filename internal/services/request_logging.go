package services

import (
	"strings"
	"time"

	"vidgen/utils"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

const reqIDKey = "reqId"

// quietPaths are polled by browsers and probes; they only log at debug.
var quietPaths = map[string]bool{
	"/health": true,
	"/state":  true,
}

func RequestLogger() fiber.Handler {
	base := log.With("component", "http")

	return func(c *fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get("X-Request-Id"))
		if reqID == "" || len(reqID) > 64 {
			reqID = utils.NewRequestID()
		}
		c.Locals(reqIDKey, reqID)
		c.Set("X-Request-Id", reqID)

		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()
		dur := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			base.Error("request failed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String(), "err", err)
			return err
		}

		if quietPaths[path] || strings.HasPrefix(path, "/ws") {
			base.Debug("request completed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String())
			return nil
		}
		base.Info("request completed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String(), "ip", c.IP())
		return nil
	}
}

func ReqID(c *fiber.Ctx) string {
	if v := c.Locals(reqIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func HttpLogger(action string, c *fiber.Ctx) *log.Logger {
	return log.With(
		"component", "api",
		"action", action,
		"reqId", ReqID(c),
		"method", c.Method(),
		"path", c.Path(),
	)
}
