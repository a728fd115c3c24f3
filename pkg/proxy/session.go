package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/stevedore-dev/stevedore/pkg/auth"
	"github.com/stevedore-dev/stevedore/pkg/dispatch"
	"github.com/stevedore-dev/stevedore/pkg/middleware"
)

// SessionConfig configures a proxy session.
type SessionConfig struct {
	// APIURL is the controller WebSocket endpoint to proxy to.
	APIURL string

	// Origin is the browser's Origin header, propagated to the
	// controller handshake. When empty the HTTP form of APIURL is used.
	Origin string

	// Dialect classifies login frames for this controller API version.
	Dialect auth.Dialect

	// Dispatcher answers in-band Deployer requests. Optional; without it
	// every frame is forwarded.
	Dispatcher *dispatch.Dispatcher

	Metrics *middleware.Metrics
	Logger  *slog.Logger
}

// Session proxies one browser connection to its own controller connection.
// Every frame passes through the authentication middleware for observation;
// frames recognized as Deployer sub-protocol requests are answered locally
// instead of being forwarded.
type Session struct {
	conn   *websocket.Conn
	config SessionConfig
	logger *slog.Logger

	client *Client

	// authMu guards user and middleware: browser frames arrive on the
	// session read loop while controller frames arrive on the client's.
	authMu sync.Mutex
	user   *auth.User
	auth   *auth.Middleware

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewSession returns a session proxying the given browser connection.
func NewSession(conn *websocket.Conn, config SessionConfig) *Session {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	user := &auth.User{}
	return &Session{
		conn:   conn,
		config: config,
		logger: logger.With("component", "session"),
		user:   user,
		auth:   auth.NewMiddleware(user, config.Dialect),
	}
}

// Run connects the outbound leg and pumps browser frames until either side
// disconnects. It blocks for the lifetime of the session.
func (s *Session) Run(ctx context.Context) error {
	s.config.Metrics.SessionOpened()
	defer s.config.Metrics.SessionClosed()
	defer s.Close()

	s.client = NewClient(ClientOptions{
		URL:       s.config.APIURL,
		Origin:    s.config.Origin,
		OnMessage: s.onControllerMessage,
		OnClose:   s.onControllerClose,
		Logger:    s.logger,
	})
	s.logger.Info("client connected")
	if err := s.client.Connect(ctx); err != nil {
		s.logger.Error("unable to connect to the controller", "error", err)
		return err
	}
	s.logger.Info("controller connected")

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			s.logger.Info("client connection closed")
			return nil
		}
		s.handleBrowserFrame(ctx, msg)
	}
}

// Close terminates both legs. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		if s.client != nil {
			s.client.Close()
		}
	})
}

// handleBrowserFrame routes one frame arriving from the browser: Deployer
// sub-protocol requests are served locally, everything else is shown to the
// auth request path and forwarded verbatim.
func (s *Session) handleBrowserFrame(ctx context.Context, msg []byte) {
	data := decodeObject(msg, s.logger)
	if data != nil && s.config.Dispatcher != nil && s.config.Dispatcher.Recognize(data) {
		s.authMu.Lock()
		user := *s.user
		s.authMu.Unlock()
		go func() {
			response := s.config.Dispatcher.Serve(ctx, &user, data)
			s.writeToBrowser(response)
		}()
		return
	}
	if data != nil {
		s.authMu.Lock()
		if !s.user.Authenticated {
			s.auth.ProcessRequest(data)
		}
		s.authMu.Unlock()
	}
	if err := s.client.Write(msg); err != nil {
		s.logger.Error("forward to controller failed", "error", err)
		return
	}
	s.config.Metrics.FrameForwarded("inbound")
}

// onControllerMessage forwards a controller frame to the browser, first
// showing it to the auth response path while a login is pending.
func (s *Session) onControllerMessage(msg []byte) {
	if data := decodeObject(msg, s.logger); data != nil {
		s.authMu.Lock()
		if s.auth.InProgress() {
			s.auth.ProcessResponse(data)
			if s.user.Authenticated {
				s.logger.Info("user authenticated", "user", s.user.String())
			}
		}
		s.authMu.Unlock()
	}
	s.writeToBrowser(msg)
	s.config.Metrics.FrameForwarded("outbound")
}

// onControllerClose terminates the session when the controller drops the
// connection. A controller-initiated disconnect is unexpected; the browser
// is disconnected in response.
func (s *Session) onControllerClose(err error) {
	s.logger.Error("controller unexpectedly disconnected", "error", err)
	s.Close()
}

func (s *Session) writeToBrowser(msg []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.logger.Error("write to client failed", "error", err)
	}
}

// decodeObject decodes a JSON object frame; frames that are not valid JSON
// objects are proxied untouched but cannot be observed or dispatched.
func decodeObject(msg []byte, logger *slog.Logger) auth.Message {
	var data map[string]any
	if err := json.Unmarshal(msg, &data); err != nil {
		logger.Warn("message is not a JSON object")
		return nil
	}
	return data
}
