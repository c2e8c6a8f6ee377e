// Package server exposes the reference realtime server over HTTP: a fiber
// app for the info routes and a raw fasthttp handler for the websocket
// upgrade (fiber v3 does not expose *fasthttp.RequestCtx).
package server

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/hub"
	"github.com/valyala/fasthttp"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server wires the hub to its HTTP surface.
type Server struct {
	hub    *hub.Hub
	auth   Authenticator
	logger zerolog.Logger
}

// New creates a server around the given hub.
func New(h *hub.Hub, auth Authenticator, logger zerolog.Logger) *Server {
	return &Server{
		hub:    h,
		auth:   auth,
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// RegisterRoutes registers the info routes on a fiber router. The
// websocket upgrade itself is served by Handler at the app level.
func (s *Server) RegisterRoutes(group fiber.Router) {
	group.Get("/healthz", s.handleHealth)
	group.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":     true,
		"endpoint":      "/ws",
		"clients":       s.hub.ClientCount(),
		"connections":   s.hub.Clients(),
		"conversations": len(s.hub.Conversations()),
	})
}

// Handler returns a raw fasthttp handler for websocket upgrades. Register
// it on the fasthttp server at the "/ws" path.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"websocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		h := s.hub
		logger := s.logger

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			user, err := s.auth.Authenticate(token)
			if err != nil {
				// An invalid token is an authoritative rejection: close
				// with a reason the client will not retry.
				logger.Warn().Err(err).Msg("rejected connection")
				msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				conn.Close()
				return
			}

			client := hub.NewClient(uuid.New().String(), user, &fasthttpConn{conn}, h)
			h.Register(client)
			go client.WritePump()
			client.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }
