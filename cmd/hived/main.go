// hived is the reference realtime server for local development and
// integration testing. Tokens are not verified against the marketplace's
// auth service: a token of the form "<user-id>:<display-name>" is accepted
// as that user, which is enough to exercise every event flow end to end.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/bridge"
	"github.com/taskhive/realtime/src/hub"
	"github.com/taskhive/realtime/src/server"
	"github.com/taskhive/realtime/src/types"
	"github.com/valyala/fasthttp"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	h := hub.New(logger)
	go h.Run()
	defer h.Stop()

	// Attempt the Redis bridge; the hub runs standalone without it.
	var rb bridge.Bridge = bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), h, logger)
	if err := rb.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
	} else {
		h.SetBridge(rb)
		defer rb.Stop()
	}

	srv := server.New(h, server.AuthenticatorFunc(devAuth), logger)

	app := fiber.New()
	srv.RegisterRoutes(app)
	appHandler := app.Handler()
	wsHandler := srv.Handler()

	handler := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}

	addr := os.Getenv("HIVED_ADDR")
	if addr == "" {
		addr = ":4000"
	}
	logger.Info().Str("addr", addr).Msg("hived listening")
	if err := fasthttp.ListenAndServe(addr, handler); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func devAuth(token string) (types.Sender, error) {
	if token == "" {
		return types.Sender{}, fmt.Errorf("empty token")
	}
	id, name, found := strings.Cut(token, ":")
	if !found {
		name = id
	}
	return types.Sender{ID: id, Name: name}, nil
}
