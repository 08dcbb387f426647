package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/protocol"
)

// Send serialises msg to JSON and writes it to the socket. When the socket is not open
// it appends one error log entry and returns ErrNotConnected.
func (s *Session) Send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(msg)
}

func (s *Session) sendLocked(msg any) error {
	if s.state != StateConnected || s.sock == nil {
		s.appendLocked(logbuf.LevelError, "Cannot send: socket is not open")
		return ErrNotConnected
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.appendLocked(logbuf.LevelError, fmt.Sprintf("Cannot send: %v", err))
		return newError(CodeValidation, "encode message", err)
	}
	return s.writeLocked(frameKind(msg), frame)
}

// SendCommand sends a command frame with the given action to the target robot.
func (s *Session) SendCommand(action string, params map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return newError(CodeValidation, "action is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == "" {
		s.appendLocked(logbuf.LevelError, "Cannot send command: no robot selected")
		return ErrNoRobot
	}
	return s.sendLocked(protocol.NewCommand(s.target, action, params, s.clock.Now().UnixMilli()))
}

// RequestPanoramic asks the target robot for a panoramic capture. The image arrives
// later as a panoramic_image frame.
func (s *Session) RequestPanoramic() error {
	return s.SendCommand(protocol.ActionPanoramic, nil)
}

func (s *Session) writeLocked(kind string, frame []byte) error {
	if err := s.sock.WriteText(frame); err != nil {
		s.metrics.SendFailed()
		s.appendLocked(logbuf.LevelError, fmt.Sprintf("Send failed: %v", err))
		return newError(CodeSendFailed, "write frame", err)
	}
	s.metrics.FrameSent(kind)
	s.appendLocked(logbuf.LevelInfo, fmt.Sprintf("Sent: %s", frame))
	return nil
}

func frameKind(msg any) string {
	switch m := msg.(type) {
	case protocol.Command, *protocol.Command:
		return string(protocol.TypeCommand)
	case protocol.Ping, *protocol.Ping:
		return string(protocol.TypePing)
	case map[string]any:
		if t, ok := m["type"].(string); ok {
			return protocol.Type(t).Label()
		}
	}
	return protocol.OtherLabel
}
