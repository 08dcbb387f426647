// Package robotws is the client side of the console WebSocket: one text-frame
// connection to the robot gateway.
package robotws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrClosed is returned by reads and writes after Close.
var ErrClosed = errors.New("robotws: connection closed")

// Conn is a dialed console connection. Reads must come from a single goroutine;
// writes may come from any goroutine.
type Conn struct {
	url  string
	conn net.Conn
	rw   io.ReadWriter

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// lockedWriter serialises control-frame replies from the reader with data writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// RobotURL appends the robotId query parameter to the gateway base URL.
func RobotURL(base, robotID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("robotws: parse url %q: %w", base, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("robotws: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("robotId", robotID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a connection to wsURL.
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	slog.Debug("robotws connecting", "ws_url", wsURL)
	conn, br, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("robotws: dial: %w", err)
	}

	c := &Conn{url: wsURL, conn: conn, closed: make(chan struct{})}
	// br holds frames the server sent right behind the handshake response; reading
	// through it drains those first and then falls through to the socket.
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{Reader: r, Writer: lockedWriter{c: c}}
	return c, nil
}

// URL returns the URL the connection was dialed with.
func (c *Conn) URL() string {
	return c.url
}

// ReadText blocks for the next text message. Pings are answered and binary messages
// skipped. A close frame from the server surfaces as a wsutil.ClosedError.
func (c *Conn) ReadText() ([]byte, error) {
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		return nil, err
	}
	return data, nil
}

// WriteText sends one text message.
func (c *Conn) WriteText(data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		return fmt.Errorf("robotws: write: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		if werr := wsutil.WriteClientMessage(c.conn, ws.OpClose, body); werr != nil {
			slog.Debug("robotws close frame write failed", "error", werr)
		}
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// IsNormalClosure reports whether err is the server ending the session cleanly, as
// opposed to a transport failure.
func IsNormalClosure(err error) bool {
	if errors.Is(err, ErrClosed) {
		return true
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code == ws.StatusNormalClosure || closed.Code == ws.StatusGoingAway || closed.Code == ws.StatusNoStatusRcvd
	}
	return false
}

// Dialer opens robot connections against a fixed gateway base URL.
type Dialer struct {
	BaseURL string
}

// Dial connects to the gateway for robotID.
func (d Dialer) Dial(ctx context.Context, robotID string) (*Conn, error) {
	wsURL, err := RobotURL(d.BaseURL, robotID)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, wsURL)
}
