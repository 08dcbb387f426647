// Package session owns the console's single robot connection: which robot it targets,
// the socket serving it, outstanding pings, the operator log and the latest camera
// frames. Every handler runs to completion under one mutex, so consumers observe state
// changes in the order the socket, the timers and their own calls produced them.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medirunner/console/internal/liveness"
	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/protocol"
	"github.com/medirunner/console/internal/relay"
)

// State is the connection state projected to consumers.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Socket is one open transport to the gateway.
type Socket interface {
	ReadText() ([]byte, error)
	WriteText(data []byte) error
	Close() error
}

// Dialer opens a socket serving robotID.
type Dialer interface {
	Dial(ctx context.Context, robotID string) (Socket, error)
}

// Registry receives robot liveness and battery updates. It is invoked, never queried.
type Registry interface {
	UpdateRobotStatus(robotID string, online bool)
	UpdateRobotBattery(robotID string, pct float64)
	SetSocketOpen(open bool)
}

// Metrics observes session activity.
type Metrics interface {
	ConnectionChanged(connected bool)
	DialFailed()
	FrameReceived(kind string)
	MalformedFrame()
	FrameSent(kind string)
	SendFailed()
	PingAcknowledged(rtt time.Duration)
	PingTimedOut()
}

// Options configures a Session. Dialer is required.
type Options struct {
	Dialer      Dialer
	Registry    Registry
	Metrics     Metrics
	Clock       Clock
	Logger      *slog.Logger
	LogCapacity int
	PingTimeout time.Duration
	DialTimeout time.Duration
}

// Session is the console's robot connection. Create one per process with New and hand
// it to every consumer.
type Session struct {
	mu sync.Mutex

	dialer      Dialer
	registry    Registry
	metrics     Metrics
	clock       Clock
	logger      *slog.Logger
	dialTimeout time.Duration

	logs   *logbuf.Ring
	pings  *liveness.Tracker
	broker *relay.Broker

	target   string
	sock     Socket
	state    State
	gen      uint64
	vision   *protocol.VisionFrame
	panorama *protocol.PanoramicImage

	// online is the last liveness value reported per robot.
	online map[string]bool
}

// Status is a point-in-time view of the session.
type Status struct {
	State             State  `json:"state"`
	Connected         bool   `json:"connected"`
	RobotID           string `json:"robot_id,omitempty"`
	PendingPings      int    `json:"pending_pings"`
	LogCount          int    `json:"log_count"`
	Listeners         int    `json:"listeners"`
	HasVisionFrame    bool   `json:"has_vision_frame"`
	HasPanoramicImage bool   `json:"has_panoramic_image"`
}

// RobotUpdate is published on the robot feed whenever the registry is told something.
type RobotUpdate struct {
	RobotID string   `json:"robot_id"`
	Online  *bool    `json:"online,omitempty"`
	Battery *float64 `json:"battery,omitempty"`
}

// New creates a disconnected Session.
func New(opts Options) *Session {
	s := &Session{
		dialer:      opts.Dialer,
		registry:    opts.Registry,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
		logger:      opts.Logger,
		dialTimeout: opts.DialTimeout,
		logs:        logbuf.NewRing(opts.LogCapacity),
		pings:       liveness.NewTracker(opts.PingTimeout),
		broker:      relay.NewBroker(),
		state:       StateDisconnected,
		online:      make(map[string]bool),
	}
	if s.registry == nil {
		s.registry = noopRegistry{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// IsConnected reports whether the socket is open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// Target returns the selected robot, or "" when none is.
func (s *Session) Target() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		State:             s.state,
		Connected:         s.state == StateConnected,
		RobotID:           s.target,
		PendingPings:      s.pings.Pending(),
		LogCount:          s.logs.Len(),
		Listeners:         s.broker.ClientCount(),
		HasVisionFrame:    s.vision != nil,
		HasPanoramicImage: s.panorama != nil,
	}
}

// Logs returns the operator log, oldest first.
func (s *Session) Logs() []logbuf.Entry {
	return s.logs.Entries()
}

// ClearLogs empties the operator log.
func (s *Session) ClearLogs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.Clear()
	s.broker.Publish(relay.Event{Feed: relay.FeedLogsCleared, Data: struct{}{}})
}

// LatestVisionFrame returns the most recent camera frame.
func (s *Session) LatestVisionFrame() (protocol.VisionFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vision == nil {
		return protocol.VisionFrame{}, false
	}
	return *s.vision, true
}

// LatestPanoramicImage returns the panoramic capture awaiting acknowledgement.
func (s *Session) LatestPanoramicImage() (protocol.PanoramicImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panorama == nil {
		return protocol.PanoramicImage{}, false
	}
	return *s.panorama, true
}

// ClearPanoramicImage acknowledges the pending panoramic capture.
func (s *Session) ClearPanoramicImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panorama = nil
}

// PendingPings returns the number of pings awaiting a pong.
func (s *Session) PendingPings() int {
	return s.pings.Pending()
}

// Watch attaches a listener. The returned func detaches it and closes the channel; it
// may be called more than once.
func (s *Session) Watch() (<-chan relay.Event, func()) {
	id, ch := s.broker.Subscribe()
	var once sync.Once
	return ch, func() {
		once.Do(func() { s.broker.Unsubscribe(id) })
	}
}

// Subscribe and Unsubscribe let the session serve as an SSE source.
func (s *Session) Subscribe() (int64, <-chan relay.Event) { return s.broker.Subscribe() }

func (s *Session) Unsubscribe(id int64) { s.broker.Unsubscribe(id) }

// Listeners returns the number of attached listeners.
func (s *Session) Listeners() int {
	return s.broker.ClientCount()
}

// PingTimeout is how long a ping may stay unanswered.
func (s *Session) PingTimeout() time.Duration {
	return s.pings.Timeout()
}

// DroppedEvents returns how many listener deliveries were skipped.
func (s *Session) DroppedEvents() int64 {
	return s.broker.Dropped()
}

func (s *Session) appendLocked(level logbuf.Level, msg string) {
	entry := logbuf.Entry{
		ID:        uuid.NewString(),
		Timestamp: s.clock.Now(),
		Message:   msg,
		Level:     level,
	}
	s.logs.Append(entry)

	switch level {
	case logbuf.LevelError:
		s.logger.Error(msg, "robot_id", s.target)
	case logbuf.LevelSuccess:
		s.logger.Info(msg, "robot_id", s.target)
	default:
		s.logger.Debug(msg, "robot_id", s.target)
	}
	s.broker.Publish(relay.Event{Feed: relay.FeedLog, Data: entry})
}

// setOnlineLocked reports liveness changes only. Liveness frames arrive at camera rate,
// so repeats are not written to the registry or published.
func (s *Session) setOnlineLocked(robotID string, online bool) {
	if robotID == "" {
		return
	}
	if last, ok := s.online[robotID]; ok && last == online {
		return
	}
	s.online[robotID] = online
	s.registry.UpdateRobotStatus(robotID, online)
	s.broker.Publish(relay.Event{Feed: relay.FeedRobot, Data: RobotUpdate{RobotID: robotID, Online: &online}})
}

func (s *Session) setBatteryLocked(robotID string, pct float64) {
	s.registry.UpdateRobotBattery(robotID, pct)
	s.broker.Publish(relay.Event{Feed: relay.FeedRobot, Data: RobotUpdate{RobotID: robotID, Battery: &pct}})
}

func (s *Session) publishStateLocked() {
	s.broker.Publish(relay.Event{Feed: relay.FeedConnection, Data: s.statusLocked()})
}

type noopRegistry struct{}

func (noopRegistry) UpdateRobotStatus(string, bool) {}
func (noopRegistry) UpdateRobotBattery(string, float64) {}
func (noopRegistry) SetSocketOpen(bool) {}

type noopMetrics struct{}

func (noopMetrics) ConnectionChanged(bool) {}
func (noopMetrics) DialFailed() {}
func (noopMetrics) FrameReceived(string) {}
func (noopMetrics) MalformedFrame() {}
func (noopMetrics) FrameSent(string) {}
func (noopMetrics) SendFailed() {}
func (noopMetrics) PingAcknowledged(time.Duration) {}
func (noopMetrics) PingTimedOut() {}
