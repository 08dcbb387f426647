// Package journal appends session activity as JSON lines to date-organized,
// size-rotated files.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("journal: writer is closed")
	ErrBufferFull = errors.New("journal: buffer full")
)

// Writer handles async writing of JSON lines to <baseDir>/<date>/<name>.jsonl.
type Writer struct {
	baseDir   string
	name      string
	maxSizeMB int
	now       func() time.Time

	writeCh   chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewWriter starts a writer. name is the file base name; bufferSize bounds the number
// of queued records before Write starts dropping.
func NewWriter(baseDir, name string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	w := &Writer{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues a record. It never blocks.
func (w *Writer) Write(record any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "name", w.name)
		return ErrBufferFull
	}
}

// Close stops the writer after flushing queued records.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			// Drain what was queued before Close.
			for {
				select {
				case record := <-w.writeCh:
					w.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "error", err, "name", w.name)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "error", err, "name", w.name)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "name", w.name)
	}
}

func (w *Writer) rotateForDate(date string) error {
	if w.logger != nil {
		w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}
	filename := filepath.Join(dir, w.name+".jsonl")

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("journal file opened", "file", filename)
	return nil
}
