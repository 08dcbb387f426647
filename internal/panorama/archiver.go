package panorama

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medirunner/console/internal/protocol"
	"github.com/medirunner/console/internal/relay"
)

// Archiver stores every panoramic capture published on a session event stream.
type Archiver struct {
	store *Store
	now   func() time.Time
}

// NewArchiver creates an Archiver writing to store.
func NewArchiver(store *Store) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// Run consumes events until ctx is done or the channel closes.
func (a *Archiver) Run(ctx context.Context, events <-chan relay.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Feed != relay.FeedPanoramicImage {
				continue
			}
			img, ok := evt.Data.(protocol.PanoramicImage)
			if !ok {
				continue
			}
			meta, err := a.Archive(img)
			if err != nil {
				slog.Warn("panorama archive failed", "robot_id", img.RobotID, "error", err)
				continue
			}
			slog.Info("panorama archived", "id", meta.ID, "robot_id", meta.RobotID, "size_bytes", meta.SizeBytes)
		}
	}
}

// Archive decodes and stores one capture.
func (a *Archiver) Archive(img protocol.PanoramicImage) (Meta, error) {
	data, err := base64.StdEncoding.DecodeString(img.Payload.Data)
	if err != nil {
		return Meta{}, fmt.Errorf("panorama: decode payload: %w", err)
	}
	if len(data) == 0 {
		return Meta{}, fmt.Errorf("panorama: empty payload")
	}

	now := a.now()
	captured := now
	switch {
	case img.Payload.CaptureTime > 0:
		captured = time.UnixMilli(img.Payload.CaptureTime)
	case img.Timestamp > 0:
		captured = time.UnixMilli(img.Timestamp)
	}

	meta := Meta{
		ID:          uuid.NewString(),
		RobotID:     img.RobotID,
		Mime:        img.Payload.Mime,
		Format:      formatFor(img.Payload.Mime),
		Width:       img.Payload.Width,
		Height:      img.Payload.Height,
		SizeBytes:   len(data),
		CaptureTime: captured,
		CreatedAt:   now,
	}
	if err := a.store.Save(meta, data); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func formatFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}
