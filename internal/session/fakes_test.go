package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/robotws"
)

type fakeTimer struct {
	at    time.Time
	f     func()
	fired bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, &fakeTimer{at: c.now.Add(d), f: f})
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

// Advance moves time forward and runs every timer that has come due, in due order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeSocket struct {
	robotID string
	frames  chan []byte
	ends    chan error
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	written   [][]byte
	writeErr  error
	closeCall int
}

func newFakeSocket(robotID string) *fakeSocket {
	return &fakeSocket{
		robotID: robotID,
		frames:  make(chan []byte),
		ends:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSocket) ReadText() ([]byte, error) {
	select {
	case data := <-f.frames:
		return data, nil
	case err := <-f.ends:
		return nil, err
	case <-f.closed:
		return nil, robotws.ErrClosed
	}
}

func (f *fakeSocket) WriteText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closeCall++
	f.mu.Unlock()
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSocket) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

// deliver hands one frame to the read loop.
func (f *fakeSocket) deliver(t *testing.T, data string) {
	t.Helper()
	select {
	case f.frames <- []byte(data):
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop did not accept frame %s", data)
	}
}

// end makes the next read fail with err.
func (f *fakeSocket) end(err error) {
	f.ends <- err
}

type fakeDialer struct {
	mu      sync.Mutex
	dials   []string
	sockets []*fakeSocket
	err     error
	gate    chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, robotID string) (Socket, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, robotID)
	if d.err != nil {
		return nil, d.err
	}
	sock := newFakeSocket(robotID)
	d.sockets = append(d.sockets, sock)
	return sock, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) socketCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

type fakeRegistry struct {
	mu         sync.Mutex
	online      map[string]bool
	battery     map[string]float64
	socketOpen  bool
	statusCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{online: map[string]bool{}, battery: map[string]float64{}}
}

func (r *fakeRegistry) UpdateRobotStatus(robotID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[robotID] = online
	r.statusCalls++
}

func (r *fakeRegistry) UpdateRobotBattery(robotID string, pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery[robotID] = pct
}

func (r *fakeRegistry) SetSocketOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.socketOpen = open
}

func (r *fakeRegistry) isOnline(robotID string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.online[robotID]
	return v, ok
}

func (r *fakeRegistry) statusUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCalls
}

func (r *fakeRegistry) batteryOf(robotID string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.battery[robotID]
	return v, ok
}

func (r *fakeRegistry) isSocketOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.socketOpen
}

// fakeMetrics counts frames by the label the session reports.
type fakeMetrics struct {
	noopMetrics
	mu       sync.Mutex
	received map[string]int
	sent     map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{received: map[string]int{}, sent: map[string]int{}}
}

func (m *fakeMetrics) FrameReceived(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[kind]++
}

func (m *fakeMetrics) FrameSent(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[kind]++
}

func (m *fakeMetrics) receivedLabels() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.received)
}

func (m *fakeMetrics) sentLabels() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.sent)
}

type fixture struct {
	s        *Session
	dialer   *fakeDialer
	registry *fakeRegistry
	metrics  *fakeMetrics
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dialer:   &fakeDialer{},
		registry: newFakeRegistry(),
		metrics:  newFakeMetrics(),
		clock:    newFakeClock(1000),
	}
	f.s = New(Options{
		Dialer:   f.dialer,
		Registry: f.registry,
		Metrics:  f.metrics,
		Clock:    f.clock,
		Logger:   discardLogger(),
	})
	t.Cleanup(f.s.Disconnect)
	return f
}

func (f *fixture) connect(t *testing.T, robotID string) *fakeSocket {
	t.Helper()
	n := f.dialer.socketCount()
	if err := f.s.Connect(context.Background(), robotID); err != nil {
		t.Fatalf("Connect(%q) error: %v", robotID, err)
	}
	if f.dialer.socketCount() != n+1 {
		t.Fatalf("Connect(%q) did not dial", robotID)
	}
	return f.dialer.socket(n)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func hasLog(entries []logbuf.Entry, level logbuf.Level, msg string) bool {
	for _, e := range entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func countLevel(entries []logbuf.Entry, level logbuf.Level) int {
	n := 0
	for _, e := range entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
