package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode when the frame is not valid JSON.
var ErrMalformed = errors.New("protocol: malformed frame")

type envelope struct {
	Type    Type   `json:"type"`
	RobotID string `json:"robotId"`
}

// Decode turns one text frame into a typed message. Invalid JSON yields ErrMalformed;
// any other input decodes to one of the Inbound implementations, falling back to
// Unknown when the frame is not an object or its body does not match its type.
func Decode(data []byte) (Inbound, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	raw := json.RawMessage(append([]byte(nil), data...))

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unknown{Raw: raw}, nil
	}
	unknown := Unknown{Type: env.Type, RobotID: env.RobotID, Raw: raw}

	switch env.Type {
	case TypePong:
		var m Pong
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return m, nil
	case TypeTelemetry:
		var m Telemetry
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return m, nil
	case TypeVisionFrame:
		var m VisionFrame
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return m, nil
	case TypePanoramicImage:
		var m PanoramicImage
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return m, nil
	case TypeError:
		var m RobotError
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return m, nil
	default:
		return unknown, nil
	}
}

// Ping asks the robot to answer with a Pong echoing Timestamp.
type Ping struct {
	Type      Type   `json:"type"`
	RobotID   string `json:"robotId"`
	Timestamp int64  `json:"timestamp"`
}

// NewPing builds a ping frame for robotID stamped with ts (epoch milliseconds).
func NewPing(robotID string, ts int64) Ping {
	return Ping{Type: TypePing, RobotID: robotID, Timestamp: ts}
}

// Command actions understood by the robot firmware and the mock robot.
const (
	ActionForward   = "forward"
	ActionBackward  = "backward"
	ActionLeft      = "left"
	ActionRight     = "right"
	ActionStop      = "stop"
	ActionSetSpeed  = "set_speed"
	ActionSetMode   = "set_mode"
	ActionBeep      = "beep"
	ActionPanoramic = "panoramic"
)

// Command is a robot instruction. Payload always carries "action".
type Command struct {
	Type      Type           `json:"type"`
	RobotID   string         `json:"robotId"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// NewCommand builds a command frame. Extra params are merged into the payload; the
// action key always wins over a param of the same name.
func NewCommand(robotID, action string, params map[string]any, ts int64) Command {
	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["action"] = action
	return Command{Type: TypeCommand, RobotID: robotID, Payload: payload, Timestamp: ts}
}

// Action returns the command's action name.
func (c Command) Action() string {
	s, _ := c.Payload["action"].(string)
	return s
}
