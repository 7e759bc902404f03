// Echobackend is a sample instance for exercising the gateway locally. It
// answers MCP-style JSON, echoes requests and WebSocket messages, and streams
// server-sent events.
//
// Usage:
//
//	go run ./cmd/echobackend --port 3000
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/instance-gateway/internal/httpserver"
	"github.com/angeloszaimis/instance-gateway/pkg/logger"
)

func main() {
	port := pflag.Int("port", 3000, "port to listen on")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	log := logger.New(*level, false, "dev", os.Stdout)

	srv, err := httpserver.New(fmt.Sprintf(":%d", *port), newMux(log, os.Getenv("BROWSER_URL")),
		httpserver.WithLogger(log),
		httpserver.WithTimeouts(0, 0, 0),
	)
	if err != nil {
		log.Error("Invalid listen address", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Starting echo backend", slog.String("address", srv.Addr()))
	if err := srv.Start(); err != nil {
		log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
