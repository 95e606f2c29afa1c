// SPDX-License-Identifier: GPL-3.0-or-later

// Package viewer serves completed files to browsers.
//
// Routes:
//
//   - GET /         a minimal page listing files as they arrive
//   - GET /events   server-sent events, one "file" event per file
//   - GET /files    the most recent files as a JSON array
//   - GET /metrics  Prometheus metrics
package viewer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// keepaliveInterval is the interval between SSE comments sent to
// keep idle connections open through proxies.
const keepaliveInterval = 15 * time.Second

// New creates the viewer application.
func New(hub *Hub, gatherer prometheus.Gatherer, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(logger))

	app.Get("/", indexHandler)
	app.Get("/events", eventsHandler(hub))
	app.Get("/files", filesHandler(hub))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return app
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug(
			"http request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("latency", time.Since(start)),
		)
		return err
	}
}

func indexHandler(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(indexPage)
}

func filesHandler(hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(hub.Recent())
	}
}

func eventsHandler(hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		_, files, cancel := hub.Subscribe()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			ticker := time.NewTicker(keepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case file, ok := <-files:
					if !ok {
						return
					}
					data, err := json.Marshal(file)
					if err != nil {
						return
					}
					fmt.Fprintf(w, "event: file\ndata: %s\n\n", data)
				case <-ticker.C:
					fmt.Fprint(w, ": keepalive\n\n")
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>dnssteal</title></head>
<body>
<h1>dnssteal</h1>
<div id="files"></div>
<script>
function show(file) {
  const section = document.createElement("section");
  const title = document.createElement("h2");
  title.textContent = file.filename + " (" + file.md5 + ", " + new Date(file.time * 1000).toISOString() + ")";
  const body = document.createElement("pre");
  body.textContent = file.content;
  section.append(title, body);
  document.getElementById("files").prepend(section);
}
fetch("/files").then(r => r.json()).then(files => files.forEach(show));
new EventSource("/events").addEventListener("file", ev => show(JSON.parse(ev.data)));
</script>
</body>
</html>
`
