package session

import (
	"fmt"

	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/protocol"
	"github.com/medirunner/console/internal/relay"
)

// handleFrame applies one inbound text frame. Frames for a robot other than the target
// are not applied to state; they fall through to the catch-all log line.
func (s *Session) handleFrame(gen uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		s.metrics.MalformedFrame()
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Received non-JSON message: %s", data))
		return
	}
	s.metrics.FrameReceived(msg.Kind().Label())

	if s.target == "" || msg.Robot() != s.target {
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Received: %s", data))
		return
	}
	if msg.Kind().SignalsLiveness() {
		s.setOnlineLocked(s.target, true)
	}

	switch m := msg.(type) {
	case protocol.Pong:
		s.handlePongLocked(m)
	case protocol.Telemetry:
		s.handleTelemetryLocked(m)
	case protocol.VisionFrame:
		// High frequency: cached and published, never logged.
		s.vision = &m
		s.broker.Publish(relay.Event{Feed: relay.FeedVisionFrame, Data: m})
	case protocol.PanoramicImage:
		s.panorama = &m
		s.appendLocked(logbuf.LevelSuccess, fmt.Sprintf("Panoramic image received (%dx%d)", m.Payload.Width, m.Payload.Height))
		s.broker.Publish(relay.Event{Feed: relay.FeedPanoramicImage, Data: m})
	case protocol.RobotError:
		s.appendLocked(logbuf.LevelError, fmt.Sprintf("Robot error: %s", m.Message()))
	default:
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Received: %s", data))
	}
}

func (s *Session) handlePongLocked(m protocol.Pong) {
	rtt, ok := s.pings.Acknowledge(m.Timestamp, s.clock.Now())
	if !ok {
		s.appendLocked(logbuf.LevelInfo, "Received pong response")
		return
	}
	s.metrics.PingAcknowledged(rtt)
	s.appendLocked(logbuf.LevelSuccess, fmt.Sprintf("Ping: %dms", rtt.Milliseconds()))
}

func (s *Session) handleTelemetryLocked(m protocol.Telemetry) {
	pct, ok := m.Battery()
	if !ok {
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Telemetry from %s", m.RobotID))
		return
	}
	s.setBatteryLocked(m.RobotID, pct)
	s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Telemetry from %s: battery %g%%", m.RobotID, pct))
}
