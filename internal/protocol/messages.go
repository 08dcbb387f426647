// Package protocol defines the JSON frames exchanged with the robot gateway over the
// console WebSocket. Every frame is a single object carrying a "type" discriminator and
// the robot it concerns.
package protocol

import (
	"encoding/json"
	"strconv"
)

// Type is the frame discriminator carried in the "type" field.
type Type string

const (
	TypePing           Type = "ping"
	TypePong           Type = "pong"
	TypeCommand        Type = "command"
	TypeTelemetry      Type = "telemetry"
	TypeVisionFrame    Type = "vision_frame"
	TypePanoramicImage Type = "panoramic_image"
	TypeError          Type = "error"
)

// livenessSignals lists the inbound types that prove the robot is alive.
var livenessSignals = map[Type]bool{
	TypePong:        true,
	TypeTelemetry:   true,
	TypeVisionFrame: true,
}

// SignalsLiveness reports whether receiving a frame of this type marks its robot online.
func (t Type) SignalsLiveness() bool {
	return livenessSignals[t]
}

var knownTypes = map[Type]bool{
	TypePing:           true,
	TypePong:           true,
	TypeCommand:        true,
	TypeTelemetry:      true,
	TypeVisionFrame:    true,
	TypePanoramicImage: true,
	TypeError:          true,
}

// OtherLabel stands in for every type outside the known set.
const OtherLabel = "other"

// Label returns t for known types and OtherLabel otherwise, so peers cannot grow
// label cardinality.
func (t Type) Label() string {
	if knownTypes[t] {
		return string(t)
	}
	return OtherLabel
}

// Inbound is a decoded frame received from the gateway. The implementations in this
// package are the complete set.
type Inbound interface {
	Kind() Type
	Robot() string
	inbound()
}

// Pong answers a Ping carrying the same timestamp.
type Pong struct {
	RobotID   string `json:"robotId"`
	Timestamp int64  `json:"timestamp"`
}

// Telemetry carries a free-form sensor payload. Only the battery level is interpreted.
type Telemetry struct {
	RobotID string         `json:"robotId"`
	Payload map[string]any `json:"payload"`
}

// Battery returns the battery percentage when the payload carries a numeric one.
func (t Telemetry) Battery() (float64, bool) {
	switch v := t.Payload["battery"].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ImagePayload is the encoded image shared by vision frames and panoramic images.
type ImagePayload struct {
	Mime        string `json:"mime"`
	Data        string `json:"data"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Quality     int    `json:"quality,omitempty"`
	CaptureTime int64  `json:"captureTime,omitempty"`
}

// VisionFrame is one frame of the live camera stream.
type VisionFrame struct {
	Type      Type         `json:"type"`
	RobotID   string       `json:"robotId"`
	Payload   ImagePayload `json:"payload"`
	Role      string       `json:"role,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// PanoramicImage is the result of a "panoramic" capture command.
type PanoramicImage struct {
	Type      Type         `json:"type"`
	RobotID   string       `json:"robotId"`
	Payload   ImagePayload `json:"payload"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// RobotError is an error reported by the robot or by the gateway on its behalf.
type RobotError struct {
	RobotID string `json:"robotId"`
	Payload struct {
		Message string `json:"message"`
	} `json:"payload"`
}

// Message returns the human-readable error text.
func (e RobotError) Message() string { return e.Payload.Message }

// Unknown is any well-formed JSON frame that is not one of the recognised types, or a
// recognised type whose body does not have the expected shape.
type Unknown struct {
	Type    Type
	RobotID string
	Raw     json.RawMessage
}

func (Pong) Kind() Type           { return TypePong }
func (Telemetry) Kind() Type      { return TypeTelemetry }
func (VisionFrame) Kind() Type    { return TypeVisionFrame }
func (PanoramicImage) Kind() Type { return TypePanoramicImage }
func (RobotError) Kind() Type     { return TypeError }
func (u Unknown) Kind() Type      { return u.Type }

func (m Pong) Robot() string           { return m.RobotID }
func (m Telemetry) Robot() string      { return m.RobotID }
func (m VisionFrame) Robot() string    { return m.RobotID }
func (m PanoramicImage) Robot() string { return m.RobotID }
func (m RobotError) Robot() string     { return m.RobotID }
func (m Unknown) Robot() string        { return m.RobotID }

func (Pong) inbound()           {}
func (Telemetry) inbound()      {}
func (VisionFrame) inbound()    {}
func (PanoramicImage) inbound() {}
func (RobotError) inbound()     {}
func (Unknown) inbound()        {}
