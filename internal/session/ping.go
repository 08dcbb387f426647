package session

import (
	"encoding/json"

	"github.com/medirunner/console/internal/liveness"
	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/protocol"
)

const pingTimeoutMessage = "Ping timeout — no response received"

// Ping sends a timestamped ping to the target robot and arms its timeout. It returns
// the timestamp the pong must echo.
func (s *Session) Ping() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.target == "" {
		s.appendLocked(logbuf.LevelError, "Cannot ping: no robot selected")
		return 0, ErrNoRobot
	}
	if s.state != StateConnected || s.sock == nil {
		s.appendLocked(logbuf.LevelError, "Cannot ping: socket is not open")
		return 0, ErrNotConnected
	}

	ticket := s.pings.Begin(s.target, s.clock.Now())
	frame, err := json.Marshal(protocol.NewPing(ticket.RobotID, ticket.Timestamp))
	if err != nil {
		s.pings.Cancel(ticket)
		return 0, newError(CodeValidation, "encode ping", err)
	}
	if err := s.writeLocked(string(protocol.TypePing), frame); err != nil {
		s.pings.Cancel(ticket)
		return 0, err
	}

	s.clock.AfterFunc(s.pings.Timeout(), func() { s.expirePing(ticket) })
	return ticket.Timestamp, nil
}

// expirePing is the ping timer callback. A ping already answered, or dropped by
// Disconnect, is no longer pending and the callback does nothing.
func (s *Session) expirePing(ticket liveness.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pings.Expire(ticket) {
		return
	}
	s.metrics.PingTimedOut()
	s.appendLocked(logbuf.LevelError, pingTimeoutMessage)
	s.setOnlineLocked(ticket.RobotID, false)
}
