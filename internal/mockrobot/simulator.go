package mockrobot

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"github.com/medirunner/console/internal/protocol"
)

const (
	panoramicWidth   = 1920
	panoramicTiles   = 4
	panoramicQuality = 90
)

// simulator is the state of one simulated robot.
type simulator struct {
	opts    Options
	robotID string

	mu      sync.Mutex
	battery float64
	speed   float64
	mode    string
	heading string
	frame   int
}

func newSimulator(opts Options, robotID string) *simulator {
	return &simulator{
		opts:    opts,
		robotID: robotID,
		battery: opts.InitialBattery,
		speed:   50,
		mode:    "manual",
		heading: protocol.ActionStop,
	}
}

// telemetry reports the current battery level, then drains it by one point, wrapping
// back to the initial level below zero.
func (s *simulator) telemetry() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := map[string]any{
		"type":    protocol.TypeTelemetry,
		"robotId": s.robotID,
		"payload": map[string]any{
			"battery": s.battery,
			"speed":   s.speed,
			"mode":    s.mode,
			"motion":  s.heading,
		},
		"timestamp": time.Now().UnixMilli(),
	}
	s.battery--
	if s.battery < 0 {
		s.battery = s.opts.InitialBattery
	}
	return msg
}

func (s *simulator) apply(cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action := cmd.Action(); action {
	case protocol.ActionSetSpeed:
		if v, ok := cmd.Payload["speed"].(float64); ok && v >= 0 && v <= 100 {
			s.speed = v
		}
	case protocol.ActionSetMode:
		if v, ok := cmd.Payload["mode"].(string); ok && v != "" {
			s.mode = v
		}
	case protocol.ActionBeep:
	default:
		s.heading = action
	}
}

func (s *simulator) visionFrame() (protocol.VisionFrame, error) {
	s.mu.Lock()
	s.frame++
	seq := s.frame
	s.mu.Unlock()

	img := render(s.opts.FrameWidth, s.opts.FrameHeight, seq)
	data, err := encodeJPEG(img, s.opts.JPEGQuality)
	if err != nil {
		return protocol.VisionFrame{}, err
	}
	return protocol.VisionFrame{
		Type:    protocol.TypeVisionFrame,
		RobotID: s.robotID,
		Role:    "robot",
		Payload: protocol.ImagePayload{
			Mime:    "image/jpeg",
			Data:    base64.StdEncoding.EncodeToString(data),
			Width:   s.opts.FrameWidth,
			Height:  s.opts.FrameHeight,
			Quality: s.opts.JPEGQuality,
		},
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// panoramic tiles the current frame horizontally and scales it to a fixed width.
func (s *simulator) panoramic() (protocol.PanoramicImage, error) {
	s.mu.Lock()
	seq := s.frame
	s.mu.Unlock()

	height := panoramicWidth * s.opts.FrameHeight / (s.opts.FrameWidth * panoramicTiles)
	if height < 1 {
		height = 1
	}
	img := render(panoramicWidth, height, seq)
	data, err := encodeJPEG(img, panoramicQuality)
	if err != nil {
		return protocol.PanoramicImage{}, err
	}

	captured := time.Now().UnixMilli()
	return protocol.PanoramicImage{
		Type:    protocol.TypePanoramicImage,
		RobotID: s.robotID,
		Payload: protocol.ImagePayload{
			Mime:        "image/jpeg",
			Data:        base64.StdEncoding.EncodeToString(data),
			Width:       panoramicWidth,
			Height:      height,
			CaptureTime: captured,
		},
		Timestamp: captured,
	}, nil
}

// render draws a moving gradient so consecutive frames differ.
func render(w, h, seq int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + seq*4) % 256),
				G: uint8(y * 255 / h),
				B: uint8((x + y + seq) % 256),
				A: 255,
			})
		}
	}
	return img
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
