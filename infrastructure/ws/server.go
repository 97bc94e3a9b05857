// Package ws exposes the chat over websockets with fiber.
package ws

import (
	"context"
	"fmt"
	"helpdesk-chat/auth"
	"helpdesk-chat/errors"
	"helpdesk-chat/session"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type Config struct {
	BufferSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	RatePerSecond  float64
	RateBurst      int
}

// FrameRecorder is told how every inbound frame ended.
type FrameRecorder interface {
	RecordFrame(err error)
}

type StatsProvider func() any

type Server struct {
	ctx      context.Context
	log      *slog.Logger
	app      *fiber.App
	handler  *session.Handler
	config   Config
	recorder FrameRecorder
}

// NewServer builds the fiber app. authenticator may be nil to accept
// anonymous handshakes; stats may be nil to disable /debug/stats.
func NewServer(ctx context.Context, log *slog.Logger, handler *session.Handler, config Config,
	authenticator *auth.Authenticator, recorder FrameRecorder, stats StatsProvider) *Server {
	s := &Server{
		ctx:      ctx,
		log:      log,
		handler:  handler,
		config:   config,
		recorder: recorder,
		app: fiber.New(fiber.Config{
			AppName:               "helpdesk-chat",
			DisableStartupMessage: true,
		}),
	}

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if stats != nil {
		s.app.Get("/debug/stats", func(c *fiber.Ctx) error {
			return c.JSON(stats())
		})
	}

	chain := []fiber.Handler{upgradeOnly}
	if authenticator != nil {
		chain = append(chain, authenticator.Middleware())
	}
	chain = append(chain, websocket.New(s.serve, websocket.Config{
		HandshakeTimeout: config.WriteTimeout,
	}))
	s.app.Get("/ws", chain...)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Listen blocks until the server stops.
func (s *Server) Listen(addr string) error {
	s.log.Info("Websocket server listening", "addr", addr)
	if err := s.app.Listen(addr); err != nil {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// serve owns one websocket until it closes. Frames are handled one by one so
// events of a connection are processed in arrival order.
func (s *Server) serve(c *websocket.Conn) {
	conn := NewConnection(s.log, c, s.config.BufferSize, s.config.WriteTimeout, s.config.PingInterval)
	var opts []session.Option
	if userID, ok := c.Locals(auth.UserIDKey).(string); ok && userID != "" {
		opts = append(opts, session.WithAuthenticatedUser(userID))
	}
	sess := s.handler.Open(conn, opts...)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		conn.writePump()
	}()

	limiter := rate.NewLimiter(rate.Limit(s.config.RatePerSecond), s.config.RateBurst)
	c.SetReadLimit(s.config.MaxMessageSize)
	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			s.log.Debug("Read loop ended", "connection_id", conn.ID(), "error", err)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			s.log.Warn("Frame dropped", "connection_id", conn.ID(), "user_id", sess.UserID(), "error", errors.ErrRateLimited)
			s.record(errors.ErrRateLimited)
			continue
		}
		s.record(sess.HandleFrame(s.ctx, data))
	}

	sess.Close()
	_ = conn.Close()
	// The fiber conn must not be touched once this handler returns
	<-pumpDone
}

func (s *Server) record(err error) {
	if s.recorder != nil {
		s.recorder.RecordFrame(err)
	}
}
