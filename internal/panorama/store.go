// Package panorama archives panoramic captures on disk: one image file plus a JSON
// metadata sidecar per capture.
package panorama

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrInvalidID is returned for ids that are not lowercase UUIDs.
	ErrInvalidID = errors.New("panorama: invalid id")
	// ErrNotFound is returned when no capture has the requested id.
	ErrNotFound = errors.New("panorama: not found")
)

// Meta describes one stored capture.
type Meta struct {
	ID          string    `json:"id"`
	RobotID     string    `json:"robot_id"`
	Mime        string    `json:"mime"`
	Format      string    `json:"format"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SizeBytes   int       `json:"size_bytes"`
	CaptureTime time.Time `json:"capture_time"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store manages capture files on disk.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("panorama store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string { return s.dir }

func validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save writes both the image file and metadata sidecar.
func (s *Store) Save(meta Meta, imageData []byte) error {
	if err := validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := filepath.Join(s.dir, meta.ID+"."+meta.Format)
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return fmt.Errorf("panorama store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("panorama store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("panorama store: write meta: %w", err)
	}
	return nil
}

// Get reads capture metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := validateID(id); err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *Store) readMeta(id string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Meta{}, fmt.Errorf("panorama store: read meta: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("panorama store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns stored captures, newest first. A non-empty robotID filters by robot.
func (s *Store) List(robotID string) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("panorama store: glob: %w", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if robotID != "" && meta.RobotID != robotID {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage reads the raw image bytes and returns the metadata alongside.
func (s *Store) ReadImage(id string) ([]byte, Meta, error) {
	if err := validateID(id); err != nil {
		return nil, Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return nil, Meta{}, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+"."+meta.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return nil, Meta{}, fmt.Errorf("panorama store: read image: %w", err)
	}
	return data, meta, nil
}

// Delete removes both the image and metadata files.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dir, id+"."+meta.Format)); err != nil {
		slog.Debug("panorama image cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(filepath.Join(s.dir, id+".json")); err != nil {
		return fmt.Errorf("panorama store: remove meta: %w", err)
	}
	return nil
}
