package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/logging"
)

// DefaultSendBuffer is the number of frames queued per connection before
// the connection is considered too slow.
const DefaultSendBuffer = 256

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdentityHeaders overrides the trusted identity header names. Empty
// names keep their defaults.
func WithIdentityHeaders(h IdentityHeaders) Option {
	return func(s *Server) {
		if h.UserID != "" {
			s.headers.UserID = h.UserID
		}
		if h.UserName != "" {
			s.headers.UserName = h.UserName
		}
		if h.Email != "" {
			s.headers.Email = h.Email
		}
		if h.Avatar != "" {
			s.headers.Avatar = h.Avatar
		}
	}
}

// WithAllowedOrigins sets glob patterns for browser origins. Without
// patterns only same-host origins are accepted.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// Server is the websocket and admin HTTP front end of a Hub.
type Server struct {
	hub     *coordination.Hub
	logger  *logging.Logger
	headers IdentityHeaders

	originPatterns []string
	origins        *originMatcher
	upgrader       websocket.Upgrader
	sendBuffer     int

	mu      sync.RWMutex
	clients map[string]*client
	// group name -> connection id -> client
	groups map[string]map[string]*client

	subscription string
}

// NewServer creates a Server and subscribes it to the hub's event bus.
func NewServer(hub *coordination.Hub, opts ...Option) (*Server, error) {
	if hub == nil {
		return nil, errors.New("gateway: hub is required")
	}
	s := &Server{
		hub:        hub,
		logger:     logging.NopLogger(),
		headers:    DefaultIdentityHeaders(),
		sendBuffer: DefaultSendBuffer,
		clients:    make(map[string]*client),
		groups:     make(map[string]map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}

	origins, err := newOriginMatcher(s.originPatterns)
	if err != nil {
		return nil, err
	}
	s.origins = origins
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if !origins.empty() {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return s.origins.allow(r.Header.Get("Origin"))
		}
	}

	s.subscription = hub.Bus().SubscribeAll(s.deliver)
	return s, nil
}

// Handler returns the HTTP routes: the websocket endpoint and the
// read-only admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{type}/{id}", s.getSession)
	return mux
}

// Close disconnects every client and stops receiving events.
func (s *Server) Close() {
	s.hub.Bus().Unsubscribe(s.subscription)

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// ConnectionCount returns the number of open websocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	caller, err := s.headers.caller(r)
	if err != nil {
		s.logger.Warn("rejected websocket without identity", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.WithUser(caller.UserID).Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	caller.ConnectionID = uuid.NewString()
	c := newClient(conn, caller, s.sendBuffer, s.logger)
	s.register(c)
	c.logger.Info("client connected")

	go c.writePump()
	c.readPump(s.handleFrame)

	s.unregister(c)
	c.close()
	report := s.hub.Disconnect(caller)
	c.logger.Info("client disconnected",
		"sessions", len(report.Sessions),
		"locks_released", report.LocksReleased,
	)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	for name, members := range s.groups {
		delete(members, c.id)
		if len(members) == 0 {
			delete(s.groups, name)
		}
	}
}

// addToGroup reports false if c was already a member.
func (s *Server) addToGroup(group string, c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[group]
	if !ok {
		members = make(map[string]*client)
		s.groups[group] = members
	}
	if _, ok := members[c.id]; ok {
		return false
	}
	members[c.id] = c
	return true
}

func (s *Server) removeFromGroup(group string, c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[group]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(s.groups, group)
	}
}

// deliver fans a bus notification out to the members of its group,
// skipping the excluded connection.
func (s *Server) deliver(e event.Event) {
	n, ok := e.(event.Notification)
	if !ok {
		return
	}
	route := n.Route()

	s.mu.RLock()
	targets := make([]*client, 0, len(s.groups[route.Group]))
	for id, c := range s.groups[route.Group] {
		if id != route.Except {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	msg, err := json.Marshal(ServerFrame{
		Event:     n.Name(),
		Group:     route.Group,
		Data:      n,
		Timestamp: n.Timestamp().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to marshal notification", "event", n.Name(), "error", err.Error())
		return
	}
	for _, c := range targets {
		c.enqueue(msg)
	}
}

// groupMembers returns the connection ids in a group. Used by tests and the
// admin API.
func (s *Server) groupMembers(group string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.groups[group]))
	for id := range s.groups[group] {
		ids = append(ids, id)
	}
	return ids
}

func now() time.Time { return time.Now().UTC() }
