// Package controller is the operation layer behind the HTTP API: it validates input,
// drives the robot session and reads the fleet registry and panorama archive.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medirunner/console/internal/fleet"
	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/panorama"
	"github.com/medirunner/console/internal/protocol"
	"github.com/medirunner/console/internal/session"
)

// RobotSession is the slice of *session.Session the service drives.
type RobotSession interface {
	Connect(ctx context.Context, robotID string) error
	Disconnect()
	Status() session.Status
	Ping() (int64, error)
	Send(msg any) error
	SendCommand(action string, params map[string]any) error
	RequestPanoramic() error
	Logs() []logbuf.Entry
	ClearLogs()
	LatestVisionFrame() (protocol.VisionFrame, bool)
	LatestPanoramicImage() (protocol.PanoramicImage, bool)
	ClearPanoramicImage()
}

// Fleet reads the robot registry.
type Fleet interface {
	List(ctx context.Context) ([]fleet.Robot, error)
	Get(ctx context.Context, robotID string) (fleet.Robot, error)
}

// Panoramas reads and prunes the panorama archive.
type Panoramas interface {
	List(robotID string) ([]panorama.Meta, error)
	Get(id string) (panorama.Meta, error)
	ReadImage(id string) ([]byte, panorama.Meta, error)
	Delete(id string) error
}

// Service wraps robot console operations.
type Service struct {
	sess  RobotSession
	fleet Fleet
	panos Panoramas
}

// NewService creates a Service. robots and panos may be nil when those stores are
// disabled; their operations then report NOT_FOUND.
func NewService(sess RobotSession, robots Fleet, panos Panoramas) *Service {
	return &Service{sess: sess, fleet: robots, panos: panos}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &session.CodedError{Code: session.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func notFound(what string, err error) error {
	return &session.CodedError{Code: session.CodeNotFound, Message: what + " not found", Cause: err}
}

// --- Session ---

func (s *Service) State(ctx context.Context) session.Status {
	return s.sess.Status()
}

func (s *Service) Connect(ctx context.Context, robotID string) (session.Status, error) {
	if err := s.requireNonEmpty(robotID, "robot_id"); err != nil {
		return session.Status{}, err
	}
	if err := s.sess.Connect(ctx, strings.TrimSpace(robotID)); err != nil {
		return s.sess.Status(), err
	}
	return s.sess.Status(), nil
}

func (s *Service) Disconnect(ctx context.Context) session.Status {
	s.sess.Disconnect()
	return s.sess.Status()
}

func (s *Service) Ping(ctx context.Context) (int64, error) {
	return s.sess.Ping()
}

// Send forwards an arbitrary JSON object. A missing robotId is filled in with the
// current target.
func (s *Service) Send(ctx context.Context, msg map[string]any) error {
	if len(msg) == 0 {
		return &session.CodedError{Code: session.CodeValidation, Message: "message is required"}
	}
	if _, ok := msg["robotId"]; !ok {
		if target := s.sess.Status().RobotID; target != "" {
			msg["robotId"] = target
		}
	}
	return s.sess.Send(msg)
}

func (s *Service) Command(ctx context.Context, action string, params map[string]any) error {
	if err := s.requireNonEmpty(action, "action"); err != nil {
		return err
	}
	return s.sess.SendCommand(strings.TrimSpace(action), params)
}

func (s *Service) RequestPanoramic(ctx context.Context) error {
	return s.sess.RequestPanoramic()
}

func (s *Service) Logs(ctx context.Context) []logbuf.Entry {
	return s.sess.Logs()
}

func (s *Service) ClearLogs(ctx context.Context) {
	s.sess.ClearLogs()
}

func (s *Service) VisionFrame(ctx context.Context) (protocol.VisionFrame, error) {
	frame, ok := s.sess.LatestVisionFrame()
	if !ok {
		return protocol.VisionFrame{}, notFound("vision frame", nil)
	}
	return frame, nil
}

func (s *Service) PanoramicImage(ctx context.Context) (protocol.PanoramicImage, error) {
	img, ok := s.sess.LatestPanoramicImage()
	if !ok {
		return protocol.PanoramicImage{}, notFound("panoramic image", nil)
	}
	return img, nil
}

func (s *Service) ClearPanoramicImage(ctx context.Context) {
	s.sess.ClearPanoramicImage()
}

// --- Fleet ---

func (s *Service) ListRobots(ctx context.Context) ([]fleet.Robot, error) {
	if s.fleet == nil {
		return []fleet.Robot{}, nil
	}
	return s.fleet.List(ctx)
}

func (s *Service) GetRobot(ctx context.Context, robotID string) (fleet.Robot, error) {
	if err := s.requireNonEmpty(robotID, "robot_id"); err != nil {
		return fleet.Robot{}, err
	}
	if s.fleet == nil {
		return fleet.Robot{}, notFound("robot", nil)
	}
	r, err := s.fleet.Get(ctx, strings.TrimSpace(robotID))
	if errors.Is(err, fleet.ErrNotFound) {
		return fleet.Robot{}, notFound("robot", err)
	}
	return r, err
}

// --- Panorama archive ---

func (s *Service) panoramaErr(err error) error {
	switch {
	case errors.Is(err, panorama.ErrInvalidID):
		return &session.CodedError{Code: session.CodeValidation, Message: "invalid panorama id", Cause: err}
	case errors.Is(err, panorama.ErrNotFound):
		return notFound("panorama", err)
	default:
		return fmt.Errorf("panorama archive: %w", err)
	}
}

func (s *Service) ListPanoramas(ctx context.Context, robotID string) ([]panorama.Meta, error) {
	if s.panos == nil {
		return []panorama.Meta{}, nil
	}
	metas, err := s.panos.List(strings.TrimSpace(robotID))
	if err != nil {
		return nil, s.panoramaErr(err)
	}
	return metas, nil
}

func (s *Service) GetPanorama(ctx context.Context, id string) (panorama.Meta, error) {
	if err := s.requireNonEmpty(id, "panorama_id"); err != nil {
		return panorama.Meta{}, err
	}
	if s.panos == nil {
		return panorama.Meta{}, notFound("panorama", nil)
	}
	meta, err := s.panos.Get(strings.TrimSpace(id))
	if err != nil {
		return panorama.Meta{}, s.panoramaErr(err)
	}
	return meta, nil
}

// ReadPanoramaImage returns the stored bytes and their content type.
func (s *Service) ReadPanoramaImage(ctx context.Context, id string) ([]byte, string, error) {
	if err := s.requireNonEmpty(id, "panorama_id"); err != nil {
		return nil, "", err
	}
	if s.panos == nil {
		return nil, "", notFound("panorama", nil)
	}
	data, meta, err := s.panos.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", s.panoramaErr(err)
	}
	mime := meta.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	return data, mime, nil
}

func (s *Service) DeletePanorama(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "panorama_id"); err != nil {
		return err
	}
	if s.panos == nil {
		return notFound("panorama", nil)
	}
	if err := s.panos.Delete(strings.TrimSpace(id)); err != nil {
		return s.panoramaErr(err)
	}
	return nil
}
