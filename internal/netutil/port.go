// Package netutil picks a listen address for the console's HTTP server.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// ErrNoAddress is returned when neither the preferred address nor any candidate can be
// listened on.
var ErrNoAddress = errors.New("netutil: no available bind address")

// Listen opens a TCP listener on preferred, or on the first free candidate when
// preferred is taken and autoFallback is set. The listener is returned open, so the
// port cannot be taken between the check and the bind.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("netutil: preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == "" || addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		slog.Debug("fallback bind address unavailable", "addr", addr, "error", err)
	}
	return nil, ErrNoAddress
}
