// Package server exposes the looper over a WebSocket control surface.
// Clients send commands as JSON frames and receive acknowledgements plus
// every recorder event published on the bus.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/realtime-ai/looper/pkg/looper"
	"github.com/realtime-ai/looper/pkg/pipeline"
	"github.com/realtime-ai/looper/pkg/trace"
)

// Controller is the recorder surface the server drives. looper.Runner
// implements it.
type Controller interface {
	Play(ctx context.Context, name string, loop bool) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	StartRecord(ctx context.Context) error
	StopRecord(ctx context.Context) error
	SetReadPosition(ctx context.Context, fraction float64) error
	SetSaturation(v float64)
	Status() looper.Status
	Diagnostics() looper.Diagnostics
}

// Exporter is implemented by controllers that can export the current loop.
type Exporter interface {
	ExportWAV(ctx context.Context, w io.WriteSeeker) error
}

var _ Controller = (*looper.Runner)(nil)
var _ Exporter = (*looper.Runner)(nil)

// Config holds the control server configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":8090").
	Addr string

	// Path is the WebSocket endpoint path.
	Path string

	// AuthToken is the bearer token for authentication.
	// If empty, authentication is disabled.
	AuthToken string

	// MaxClients limits concurrent control connections. 0 means no limit.
	MaxClients int

	// CommandTimeout bounds how long a command may wait for the recorder.
	CommandTimeout time.Duration

	// SendQueue is the per-client outgoing message buffer.
	SendQueue int

	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8090",
		Path:            "/v1/looper",
		MaxClients:      8,
		CommandTimeout:  2 * time.Second,
		SendQueue:       64,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan ServerMessage
	ctx    context.Context
	cancel context.CancelFunc
}

// queue hands msg to the write loop, dropping it when the client is slow.
func (c *client) queue(msg ServerMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		log.Printf("[ControlServer] [client %s] send queue full, dropping %s", c.id, msg.Type)
	}
}

// ControlServer is the WebSocket control server.
type ControlServer struct {
	config *Config
	ctrl   Controller
	bus    pipeline.Bus
	events chan pipeline.Event

	clients   map[string]*client
	clientsMu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewControlServer creates a control server for ctrl. Events published on
// bus are forwarded to every client; bus may be nil.
func NewControlServer(config *Config, ctrl Controller, bus pipeline.Bus) *ControlServer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SendQueue <= 0 {
		config.SendQueue = 64
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 2 * time.Second
	}
	if config.Path == "" {
		config.Path = "/v1/looper"
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &ControlServer{
		config:  config,
		ctrl:    ctrl,
		bus:     bus,
		clients: make(map[string]*client),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/loop.wav", s.handleExport)
	return s
}

// Handler returns the HTTP handler serving the control endpoints.
func (s *ControlServer) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and begins forwarding events.
func (s *ControlServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.mux}

	s.startForwarding()

	log.Printf("[ControlServer] starting on %s%s", ln.Addr(), s.config.Path)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ControlServer] serve: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *ControlServer) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Stop closes every client and shuts the HTTP server down.
func (s *ControlServer) Stop(ctx context.Context) error {
	s.cancel()

	if s.bus != nil && s.events != nil {
		for _, t := range pipeline.EventTypes {
			s.bus.Unsubscribe(t, s.events)
		}
	}

	s.clientsMu.Lock()
	for _, c := range s.clients {
		c.cancel()
		c.conn.Close()
	}
	s.clients = make(map[string]*client)
	s.clientsMu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// ClientCount returns the number of connected clients.
func (s *ControlServer) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *ControlServer) startForwarding() {
	if s.bus == nil || s.events != nil {
		return
	}
	s.events = make(chan pipeline.Event, 64)
	for _, t := range pipeline.EventTypes {
		s.bus.Subscribe(t, s.events)
	}

	s.wg.Add(1)
	go s.forwardEvents()
}

// forwardEvents broadcasts bus events to every client.
func (s *ControlServer) forwardEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case evt := <-s.events:
			msg := ServerMessage{Type: MsgEvent, Event: NewEventPayload(evt)}

			s.clientsMu.RLock()
			for _, c := range s.clients {
				c.queue(msg)
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *ControlServer) authorized(r *http.Request) bool {
	if s.config.AuthToken == "" {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == s.config.AuthToken
}

// handleWebSocket handles WebSocket connections.
func (s *ControlServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if s.config.MaxClients > 0 && s.ClientCount() >= s.config.MaxClients {
		http.Error(w, "Too many clients", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ControlServer] WebSocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan ServerMessage, s.config.SendQueue),
		ctx:    ctx,
		cancel: cancel,
	}

	s.registerClient(c, getClientIP(r))
	defer s.unregisterClient(c)

	s.wg.Add(1)
	go s.writeLoop(c)

	c.queue(ServerMessage{Type: MsgWelcome, ClientID: c.id, Status: NewStatusPayload(s.ctrl.Status())})
	s.readLoop(c)
}

// readLoop handles commands from one client until it disconnects.
func (s *ControlServer) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ControlServer] [client %s] WebSocket read error: %v", c.id, err)
			}
			return
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			c.queue(ServerMessage{Type: MsgError, Error: err.Error()})
			continue
		}

		c.queue(s.handleCommand(c, msg))
	}
}

// writeLoop is the only writer of the client connection.
func (s *ControlServer) writeLoop(c *client) {
	defer s.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[ControlServer] [client %s] failed to marshal message: %v", c.id, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[ControlServer] [client %s] failed to write message: %v", c.id, err)
				c.cancel()
				return
			}
		}
	}
}

// handleCommand runs one command and builds the reply.
func (s *ControlServer) handleCommand(c *client, msg *ClientMessage) ServerMessage {
	ctx, cancel := context.WithTimeout(c.ctx, s.config.CommandTimeout)
	defer cancel()

	ctx, span := trace.InstrumentCommand(ctx, c.id, msg.Type)
	defer span.End()

	var err error
	switch msg.Type {
	case CmdPlay:
		name := msg.Name
		if name == "" {
			name = s.ctrl.Status().PlaySlot
		}
		loop := true
		if msg.Loop != nil {
			loop = *msg.Loop
		}
		err = s.ctrl.Play(ctx, name, loop)
	case CmdResume:
		err = s.ctrl.Resume(ctx)
	case CmdStop:
		err = s.ctrl.Stop(ctx)
	case CmdStartRecord:
		err = s.ctrl.StartRecord(ctx)
	case CmdStopRecord:
		err = s.ctrl.StopRecord(ctx)
	case CmdSetSaturation:
		s.ctrl.SetSaturation(*msg.Value)
	case CmdSetReadPosition:
		err = s.ctrl.SetReadPosition(ctx, *msg.Value)
	case CmdDiagnostics:
		d := s.ctrl.Diagnostics()
		return ServerMessage{Type: MsgAck, ID: msg.ID, Diagnostics: &d}
	case CmdStatus:
	}

	if err != nil {
		trace.RecordError(span, err)
		log.Printf("[ControlServer] [client %s] %s failed: %v", c.id, msg.Type, err)
		return ServerMessage{Type: MsgError, ID: msg.ID, Error: err.Error(), Status: NewStatusPayload(s.ctrl.Status())}
	}
	return ServerMessage{Type: MsgAck, ID: msg.ID, Status: NewStatusPayload(s.ctrl.Status())}
}

// handleStatus serves the recorder status as JSON.
func (s *ControlServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(NewStatusPayload(s.ctrl.Status())); err != nil {
		log.Printf("[ControlServer] failed to encode status: %v", err)
	}
}

// handleExport serves the current play slot as a WAV file. The WAV encoder
// needs to seek, so the file is built in a temporary file first.
func (s *ControlServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	exp, ok := s.ctrl.(Exporter)
	if !ok {
		http.Error(w, "Export not supported", http.StatusNotImplemented)
		return
	}

	f, err := os.CreateTemp("", "looper-*.wav")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.config.CommandTimeout)
	defer cancel()
	if err := exp.ExportWAV(ctx, f); err != nil {
		log.Printf("[ControlServer] export failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, "loop.wav", time.Now(), f)
}

// registerClient adds a client to the server.
func (s *ControlServer) registerClient(c *client, clientIP string) {
	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	log.Printf("[ControlServer] [client %s] registered from %s", c.id, clientIP)
}

// unregisterClient removes a client from the server.
func (s *ControlServer) unregisterClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()

	c.cancel()
	c.conn.Close()

	log.Printf("[ControlServer] [client %s] unregistered", c.id)
}

func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
