package ws

import (
	"context"
	"encoding/json"
	"helpdesk-chat/auth"
	"helpdesk-chat/domain/event"
	"helpdesk-chat/infrastructure/storage"
	"helpdesk-chat/observability"
	"helpdesk-chat/runtime"
	"helpdesk-chat/services"
	"helpdesk-chat/session"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	url      string
	server   *Server
	registry *runtime.Registry
	metrics  *observability.MonitoringManager
}

func startServer(t *testing.T, authenticator *auth.Authenticator) testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	users := storage.NewUserRepository(db)
	for _, user := range []string{"alice", "bob"} {
		require.NoError(t, users.CreateUser(ctx, user, user))
	}
	registry := runtime.NewRegistry()
	hub := runtime.NewHub(log)
	delivery := services.NewDeliveryService(log, storage.NewMessageRepository(db, log, users, 1000), registry, nil)
	handler := session.NewHandler(log, registry, hub, delivery, nil, time.Minute)
	t.Cleanup(handler.Shutdown)
	metrics := observability.NewMonitoringManager(log)

	server := NewServer(ctx, log, handler, Config{
		BufferSize:     16,
		WriteTimeout:   time.Second,
		PingInterval:   time.Minute,
		MaxMessageSize: 64 * 1024,
		RatePerSecond:  100,
		RateBurst:      100,
	}, authenticator, metrics, func() any { return metrics.Refresh() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.App().Listener(ln) }()
	t.Cleanup(func() { _ = server.Shutdown(time.Second) })

	return testServer{url: "ws://" + ln.Addr().String() + "/ws", server: server, registry: registry, metrics: metrics}
}

func dial(t *testing.T, url string) *fastws.Conn {
	t.Helper()
	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *fastws.Conn, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(event.Envelope{Event: name, Data: raw}))
}

// expect reads frames until one named name arrives.
func expect(t *testing.T, conn *fastws.Conn, name string) event.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env event.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == name {
			return env
		}
	}
}

func TestServer_LiveConversation(t *testing.T) {
	req := require.New(t)
	ts := startServer(t, nil)
	alice := dial(t, ts.url)
	bob := dial(t, ts.url)

	// Given both agents announced themselves
	emit(t, alice, event.UserConnected, "alice")
	expect(t, alice, event.OnlineUsers)
	emit(t, bob, event.UserConnected, "bob")
	online := expect(t, bob, event.OnlineUsers)
	req.JSONEq(`["alice","bob"]`, string(online.Data))

	// When alice writes to bob
	emit(t, alice, event.SendMessage, event.SendMessagePayload{SenderID: "alice", ReceiverID: "bob", Message: "hello"})

	// Then bob receives it live and alice gets the acknowledgement
	var received event.MessagePayload
	req.NoError(json.Unmarshal(expect(t, bob, event.ReceiveMessage).Data, &received))
	req.Equal("hello", received.Message)
	req.Equal("delivered", received.Status)

	var ack event.MessagePayload
	req.NoError(json.Unmarshal(expect(t, alice, event.MessageSent).Data, &ack))
	req.Equal(received.ID, ack.ID)

	// When bob reads it, alice is told
	emit(t, bob, event.MessageRead, event.MessageReadPayload{MessageID: received.ID, SenderID: "alice"})
	var seen event.MessageSeenPayload
	req.NoError(json.Unmarshal(expect(t, alice, event.MessageSeenEvent).Data, &seen))
	req.Equal(received.ID, seen.MessageID)

	req.GreaterOrEqual(ts.metrics.Refresh().FramesHandled, uint64(4))
}

func TestServer_DisconnectKeepsUserOnlineDuringGrace(t *testing.T) {
	req := require.New(t)
	ts := startServer(t, nil)
	bob := dial(t, ts.url)
	emit(t, bob, event.UserConnected, "bob")
	expect(t, bob, event.OnlineUsers)

	req.NoError(bob.Close())

	// The grace period is a minute; bob stays online
	time.Sleep(50 * time.Millisecond)
	req.True(ts.registry.IsOnline("bob"))
}

func TestServer_RequiresTokenWhenConfigured(t *testing.T) {
	req := require.New(t)
	authenticator := auth.NewAuthenticator("secret")
	ts := startServer(t, authenticator)

	_, resp, err := fastws.DefaultDialer.Dial(ts.url, nil)
	req.Error(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	token, err := authenticator.GenerateToken("bob", nil, time.Hour)
	req.NoError(err)
	bob := dial(t, ts.url+"?token="+token)

	// Announcing someone else is ignored
	emit(t, bob, event.UserConnected, "alice")
	emit(t, bob, event.UserConnected, "bob")
	online := expect(t, bob, event.OnlineUsers)
	req.JSONEq(`["bob"]`, string(online.Data))
}

func TestServer_HTTPRoutes(t *testing.T) {
	req := require.New(t)
	ts := startServer(t, nil)
	app := ts.server.App()

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/ws", nil))
	req.NoError(err)
	req.Equal(fiber.StatusUpgradeRequired, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/debug/stats", nil))
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
}
