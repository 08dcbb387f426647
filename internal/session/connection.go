package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/robotws"
)

// Connect opens the socket for robotID. Calling it again for the robot that is already
// connected (or being connected) does nothing. A connection serving another robot is
// torn down before the new one is dialed. There is no automatic reconnect: after the
// socket drops, callers invoke Connect again.
func (s *Session) Connect(ctx context.Context, robotID string) error {
	robotID = strings.TrimSpace(robotID)
	if robotID == "" {
		return newError(CodeValidation, "robot id is required", nil)
	}

	s.mu.Lock()
	if s.target == robotID && s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}

	var old Socket
	if s.target != "" && s.target != robotID {
		old = s.teardownLocked()
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Switching to robot %s", robotID))
	} else if s.sock != nil {
		// Same robot, socket already dead.
		old = s.sock
		s.sock = nil
	}
	s.gen++
	gen := s.gen
	s.target = robotID
	s.state = StateConnecting
	s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Connecting to robot %s", robotID))
	s.publishStateLocked()
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	dialCtx := ctx
	if s.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
	}
	sock, err := s.dialer.Dial(dialCtx, robotID)

	s.mu.Lock()
	if gen != s.gen {
		// A later Connect or Disconnect superseded this dial.
		s.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		return nil
	}

	if err != nil {
		s.state = StateDisconnected
		s.metrics.DialFailed()
		s.appendLocked(logbuf.LevelError, fmt.Sprintf("WebSocket error: %v", err))
		s.setOnlineLocked(robotID, false)
		s.registry.SetSocketOpen(false)
		s.publishStateLocked()
		s.mu.Unlock()
		return newError(CodeDialFailed, "connect to "+robotID, err)
	}

	s.sock = sock
	s.state = StateConnected
	s.metrics.ConnectionChanged(true)
	s.registry.SetSocketOpen(true)
	// Liveness is earned by a pong or a liveness frame, not by the socket opening.
	delete(s.online, robotID)
	s.setOnlineLocked(robotID, false)
	s.appendLocked(logbuf.LevelSuccess, fmt.Sprintf("Connected to robot %s", robotID))
	s.publishStateLocked()
	s.mu.Unlock()

	go s.readLoop(gen, sock)
	return nil
}

// Disconnect closes the socket, forgets the target robot and drops every pending ping
// so no timeout fires afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	robotID := s.target
	sock := s.teardownLocked()
	if robotID != "" {
		s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Disconnected from robot %s", robotID))
	} else {
		s.appendLocked(logbuf.LevelInfo, "Disconnected")
	}
	s.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
}

// teardownLocked resets the connection and returns the socket the caller must close
// once the lock is released.
func (s *Session) teardownLocked() Socket {
	sock := s.sock
	robotID := s.target
	wasConnected := s.state == StateConnected

	s.gen++
	s.sock = nil
	s.target = ""
	s.state = StateDisconnected
	s.vision = nil
	clear(s.online)
	if n := s.pings.Reset(); n > 0 {
		s.logger.Debug("dropped pending pings", "robot_id", robotID, "count", n)
	}

	if wasConnected {
		s.metrics.ConnectionChanged(false)
	}
	s.setOnlineLocked(robotID, false)
	s.registry.SetSocketOpen(false)
	s.publishStateLocked()
	return sock
}

func (s *Session) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadText()
		if err != nil {
			s.handleTransportEnd(gen, sock, err)
			return
		}
		s.handleFrame(gen, data)
	}
}

// handleTransportEnd runs when the socket stops delivering frames. Pending pings are
// left alone; only Disconnect clears them.
func (s *Session) handleTransportEnd(gen uint64, sock Socket, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	robotID := s.target
	if !robotws.IsNormalClosure(err) {
		s.appendLocked(logbuf.LevelError, fmt.Sprintf("WebSocket error: %v", err))
	}

	s.sock = nil
	s.state = StateDisconnected
	s.vision = nil
	s.metrics.ConnectionChanged(false)
	s.setOnlineLocked(robotID, false)
	s.registry.SetSocketOpen(false)
	s.appendLocked(logbuf.LevelInfo, "Disconnected from WebSocket")
	s.publishStateLocked()
	s.mu.Unlock()

	_ = sock.Close()
}
