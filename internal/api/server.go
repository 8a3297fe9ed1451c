package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/commlink/internal/communication"
	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/infrastructure/logging"
	"github.com/nerrad567/commlink/internal/message"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the subset of the communication coordinator the API drives.
type Coordinator interface {
	Status() communication.ConnectionStatus
	IsFullyConnected() bool
	LastMessage() (message.Message, bool)
	History() []message.Message
	ClearHistory()
	SendControl(component message.Component, id string, value any) message.Message
	Publish(topic string, payload any)
}

// Events is the coordinator event bus as seen by the API.
type Events interface {
	OnMessage(fn func(message.Message)) event.Subscription
	OnFeedback(fn func(message.Feedback)) event.Subscription
	OnStatus(fn func(message.StatusUpdate)) event.Subscription
	OnConnectionStatus(fn func(communication.ConnectionStatus)) event.Subscription
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Coordinator Coordinator
	Events      Events // optional; without it the event stream carries notifications only
	ExternalHub *Hub   // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for commlink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	coord       Coordinator
	events      Events
	version     string
	startTime   time.Time
	server      *http.Server
	addr        net.Addr // bound listener address, set by Start
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	wiring      event.Group        // bus subscriptions feeding the hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		coord:     deps.Coordinator,
		events:    deps.Events,
		version:   deps.Version,
		startTime: time.Now(),
	}

	// The hub is created up front so it can be handed to the coordinator as
	// a notifier before the server starts.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.Config.Stream, deps.Logger)
	}

	return s, nil
}

// Hub returns the event stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays coordinator events to it, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.relayEvents()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	// Bind synchronously so a busy port is reported to the caller.
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.addr = ln.Addr()
	s.logger.Info("API server starting", "address", s.addr.String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// relayEvents forwards coordinator events to stream clients.
func (s *Server) relayEvents() {
	if s.events == nil {
		return
	}
	s.wiring.Add(s.events.OnMessage(func(m message.Message) {
		s.hub.Broadcast(ChannelMessage, m)
	}))
	s.wiring.Add(s.events.OnFeedback(func(f message.Feedback) {
		s.hub.Broadcast(ChannelFeedback, f)
	}))
	s.wiring.Add(s.events.OnStatus(func(u message.StatusUpdate) {
		s.hub.Broadcast(ChannelStatus, u)
	}))
	s.wiring.Add(s.events.OnConnectionStatus(func(cs communication.ConnectionStatus) {
		s.hub.Broadcast(ChannelConnection, cs)
	}))
}

// Close gracefully shuts down the API server.
//
// It detaches from the event bus, then waits up to 10 seconds for
// in-flight requests to complete before forcefully closing connections.
func (s *Server) Close() error {
	s.wiring.Unsubscribe()

	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
