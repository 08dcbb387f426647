// Package mockrobot is a stand-in robot gateway for local development and tests. It
// accepts console WebSocket connections on /ws?robotId=<id>, answers pings, streams
// telemetry with a draining battery and synthetic JPEG camera frames, and produces a
// panoramic image when asked to.
package mockrobot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/medirunner/console/internal/protocol"
)

const (
	defaultRobotID = "robot-01"
	writeBuffer    = 100
	writeTimeout   = 5 * time.Second
)

var (
	errConnClosed   = errors.New("mockrobot: connection closed")
	errBackpressure = errors.New("mockrobot: write buffer full")
)

// Options configures the simulated robot.
type Options struct {
	TelemetryInterval time.Duration
	FrameInterval     time.Duration
	InitialBattery    float64
	FrameWidth        int
	FrameHeight       int
	JPEGQuality       int

	// IgnorePings makes the robot stop answering pings, to exercise console timeouts.
	IgnorePings bool
}

func (o *Options) applyDefaults() {
	if o.InitialBattery <= 0 {
		o.InitialBattery = 100
	}
	if o.FrameWidth <= 0 {
		o.FrameWidth = 320
	}
	if o.FrameHeight <= 0 {
		o.FrameHeight = 240
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = 60
	}
}

// Server is the mock gateway.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*robotConn]struct{}
	commands []protocol.Command
}

// NewServer creates a Server. Zero intervals disable the matching stream.
func NewServer(opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		conns: make(map[*robotConn]struct{}),
	}
}

// Handler returns the HTTP routes: /ws for the console and /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "connections": s.Connections()})
	})
	return r
}

// Connections returns the number of open console connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Commands returns every command received so far, oldest first.
func (s *Server) Commands() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Command(nil), s.commands...)
}

// Close drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*robotConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	robotID := r.URL.Query().Get("robotId")
	if robotID == "" {
		robotID = defaultRobotID
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("mockrobot upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &robotConn{
		ws:      ws,
		robotID: robotID,
		writeCh: make(chan []byte, writeBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	slog.Info("mockrobot console connected", "robot_id", robotID, "remote", r.RemoteAddr)

	go c.writeLoop()
	sim := newSimulator(s.opts, robotID)
	if s.opts.TelemetryInterval > 0 {
		go s.streamTelemetry(c, sim)
	}
	if s.opts.FrameInterval > 0 {
		go s.streamFrames(c, sim)
	}

	s.readLoop(c, sim)

	c.close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	slog.Info("mockrobot console disconnected", "robot_id", robotID)
}

func (s *Server) readLoop(c *robotConn, sim *simulator) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("mockrobot read failed", "robot_id", c.robotID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleMessage(c, sim, data)
	}
}

type inboundFrame struct {
	Type      protocol.Type  `json:"type"`
	RobotID   string         `json:"robotId"`
	Payload   map[string]any `json:"payload"`
	Timestamp *int64         `json:"timestamp"`
}

func (s *Server) handleMessage(c *robotConn, sim *simulator, data []byte) {
	var msg inboundFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("mockrobot ignored malformed frame", "robot_id", c.robotID, "error", err)
		_ = c.send(map[string]any{
			"type":    protocol.TypeError,
			"robotId": c.robotID,
			"payload": map[string]string{"message": "malformed frame"},
		})
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		if s.opts.IgnorePings {
			return
		}
		ts := time.Now().UnixMilli()
		if msg.Timestamp != nil {
			ts = *msg.Timestamp
		}
		_ = c.send(map[string]any{"type": protocol.TypePong, "robotId": c.robotID, "timestamp": ts})
	case protocol.TypeCommand:
		ts := int64(0)
		if msg.Timestamp != nil {
			ts = *msg.Timestamp
		}
		cmd := protocol.Command{Type: msg.Type, RobotID: msg.RobotID, Payload: msg.Payload, Timestamp: ts}
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()
		s.handleCommand(c, sim, cmd)
	default:
		slog.Debug("mockrobot ignored frame", "robot_id", c.robotID, "type", msg.Type)
	}
}

func (s *Server) handleCommand(c *robotConn, sim *simulator, cmd protocol.Command) {
	action := cmd.Action()
	slog.Info("mockrobot command", "robot_id", c.robotID, "action", action)

	switch action {
	case protocol.ActionPanoramic:
		go func() {
			img, err := sim.panoramic()
			if err != nil {
				slog.Warn("mockrobot panoramic failed", "robot_id", c.robotID, "error", err)
				_ = c.send(map[string]any{
					"type":    protocol.TypeError,
					"robotId": c.robotID,
					"payload": map[string]string{"message": "panoramic capture failed"},
				})
				return
			}
			if err := c.send(img); err != nil {
				slog.Debug("mockrobot panoramic send failed", "robot_id", c.robotID, "error", err)
			}
		}()
	case protocol.ActionForward, protocol.ActionBackward, protocol.ActionLeft, protocol.ActionRight,
		protocol.ActionStop, protocol.ActionSetSpeed, protocol.ActionSetMode, protocol.ActionBeep:
		sim.apply(cmd)
	default:
		_ = c.send(map[string]any{
			"type":    protocol.TypeError,
			"robotId": c.robotID,
			"payload": map[string]string{"message": "unknown action: " + action},
		})
	}
}

func (s *Server) streamTelemetry(c *robotConn, sim *simulator) {
	ticker := time.NewTicker(s.opts.TelemetryInterval)
	defer ticker.Stop()
	for {
		if err := c.send(sim.telemetry()); errors.Is(err, errConnClosed) {
			return
		}
		select {
		case <-ticker.C:
		case <-c.ctx.Done():
			return
		}
	}
}

func (s *Server) streamFrames(c *robotConn, sim *simulator) {
	ticker := time.NewTicker(s.opts.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.ctx.Done():
			return
		}
		frame, err := sim.visionFrame()
		if err != nil {
			slog.Warn("mockrobot frame encode failed", "robot_id", c.robotID, "error", err)
			continue
		}
		// Frames are dropped rather than queued when the console falls behind.
		if err := c.send(frame); errors.Is(err, errConnClosed) {
			return
		}
	}
}

// robotConn serialises writes through a single writer goroutine.
type robotConn struct {
	ws        *websocket.Conn
	robotID   string
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *robotConn) send(v any) error {
	select {
	case <-c.ctx.Done():
		return errConnClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return errConnClosed
	default:
		return errBackpressure
	}
}

func (c *robotConn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *robotConn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}
