package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/relay"
)

func TestConnectMarksRobotOfflineUntilProven(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "r1")

	if !f.s.IsConnected() {
		t.Fatalf("IsConnected() = false; want true")
	}
	if got := f.s.Target(); got != "r1" {
		t.Fatalf("Target() = %q; want r1", got)
	}
	online, seen := f.registry.isOnline("r1")
	if !seen || online {
		t.Fatalf("registry online(r1) = %v (seen %v); want explicit false", online, seen)
	}
	if !f.registry.isSocketOpen() {
		t.Fatalf("socket-open flag = false; want true")
	}
	if !hasLog(f.s.Logs(), logbuf.LevelSuccess, "Connected to robot r1") {
		t.Fatalf("logs missing connect entry: %+v", f.s.Logs())
	}
}

func TestConnectSameRobotIsNoop(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	if err := f.s.Connect(context.Background(), "r1"); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	if got := f.dialer.dialCount(); got != 1 {
		t.Fatalf("dial count = %d; want 1", got)
	}
	if sock.isClosed() {
		t.Fatalf("first socket closed by repeated Connect")
	}
	f.s.mu.Lock()
	same := f.s.sock == Socket(sock)
	f.s.mu.Unlock()
	if !same {
		t.Fatalf("socket identity changed")
	}
}

func TestConnectRejectsEmptyRobot(t *testing.T) {
	f := newFixture(t)
	err := f.s.Connect(context.Background(), "  ")
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeValidation {
		t.Fatalf("Connect(\"\") = %v; want VALIDATION", err)
	}
	if f.dialer.dialCount() != 0 {
		t.Fatalf("dialed despite invalid robot id")
	}
}

func TestConnectWhileConnectingSameRobotIsNoop(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.dialer.gate = gate

	done := make(chan error, 1)
	go func() { done <- f.s.Connect(context.Background(), "r1") }()
	waitFor(t, "connecting state", func() bool { return f.s.Status().State == StateConnecting })

	if err := f.s.Connect(context.Background(), "r1"); err != nil {
		t.Fatalf("Connect() while connecting error: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first Connect() error: %v", err)
	}
	if got := f.dialer.dialCount(); got != 1 {
		t.Fatalf("dial count = %d; want 1", got)
	}
	if !f.s.IsConnected() {
		t.Fatalf("IsConnected() = false; want true")
	}
}

func TestDisconnectDuringDialDiscardsSocket(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.dialer.gate = gate

	done := make(chan error, 1)
	go func() { done <- f.s.Connect(context.Background(), "r1") }()
	waitFor(t, "connecting state", func() bool { return f.s.Status().State == StateConnecting })

	f.s.Disconnect()
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if f.s.IsConnected() {
		t.Fatalf("IsConnected() = true after superseded dial")
	}
	if !f.dialer.socket(0).isClosed() {
		t.Fatalf("superseded socket left open")
	}
}

func TestConnectDialFailure(t *testing.T) {
	f := newFixture(t)
	f.dialer.err = errBoom

	err := f.s.Connect(context.Background(), "r1")
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeDialFailed {
		t.Fatalf("Connect() = %v; want DIAL_FAILED", err)
	}
	if f.s.IsConnected() {
		t.Fatalf("IsConnected() = true after failed dial")
	}
	if !hasLog(f.s.Logs(), logbuf.LevelError, "WebSocket error: boom") {
		t.Fatalf("logs missing dial error: %+v", f.s.Logs())
	}

	// Recovery is a plain Connect.
	f.dialer.err = nil
	f.connect(t, "r1")
	if !f.s.IsConnected() {
		t.Fatalf("IsConnected() = false after retry")
	}
}

func TestPingPongRecordsRTT(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	ts, err := f.s.Ping()
	if err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if ts != 1000 {
		t.Fatalf("Ping() timestamp = %d; want 1000", ts)
	}

	writes := sock.writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d; want 1", len(writes))
	}
	var sent map[string]any
	if err := json.Unmarshal(writes[0], &sent); err != nil {
		t.Fatalf("ping frame not JSON: %v", err)
	}
	if sent["type"] != "ping" || sent["robotId"] != "r1" || sent["timestamp"] != float64(1000) {
		t.Fatalf("ping frame = %v", sent)
	}

	f.clock.Set(1050)
	sock.deliver(t, `{"type":"pong","robotId":"r1","timestamp":1000}`)
	waitFor(t, "RTT log", func() bool { return hasLog(f.s.Logs(), logbuf.LevelSuccess, "Ping: 50ms") })

	if online, _ := f.registry.isOnline("r1"); !online {
		t.Fatalf("robot r1 online = false; want true")
	}
	if f.s.PendingPings() != 0 {
		t.Fatalf("PendingPings() = %d; want 0", f.s.PendingPings())
	}

	// The timer still fires but finds nothing to expire.
	f.clock.Advance(10 * time.Second)
	if hasLog(f.s.Logs(), logbuf.LevelError, pingTimeoutMessage) {
		t.Fatalf("timeout logged for an answered ping")
	}
	if online, _ := f.registry.isOnline("r1"); !online {
		t.Fatalf("robot demoted after answered ping")
	}
}

func TestUnmatchedPongStillSignalsLiveness(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `{"type":"pong","robotId":"r1","timestamp":42}`)
	waitFor(t, "pong log", func() bool { return hasLog(f.s.Logs(), logbuf.LevelInfo, "Received pong response") })
	if online, _ := f.registry.isOnline("r1"); !online {
		t.Fatalf("robot r1 online = false; want true")
	}
}

func TestPingTimeoutDemotesRobot(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `{"type":"telemetry","robotId":"r1","payload":{"battery":80}}`)
	waitFor(t, "online", func() bool { v, _ := f.registry.isOnline("r1"); return v })

	if _, err := f.s.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	f.clock.Advance(9999 * time.Millisecond)
	if f.s.PendingPings() != 1 {
		t.Fatalf("PendingPings() before timeout = %d; want 1", f.s.PendingPings())
	}

	f.clock.Advance(time.Millisecond)
	if !hasLog(f.s.Logs(), logbuf.LevelError, pingTimeoutMessage) {
		t.Fatalf("logs missing timeout entry: %+v", f.s.Logs())
	}
	if online, _ := f.registry.isOnline("r1"); online {
		t.Fatalf("robot r1 online = true after timeout")
	}
	if f.s.PendingPings() != 0 {
		t.Fatalf("PendingPings() = %d; want 0", f.s.PendingPings())
	}
	if !f.s.IsConnected() {
		t.Fatalf("timeout closed the connection")
	}
}

func TestPingRequiresRobotAndOpenSocket(t *testing.T) {
	f := newFixture(t)

	if _, err := f.s.Ping(); !errors.Is(err, ErrNoRobot) {
		t.Fatalf("Ping() without robot = %v; want ErrNoRobot", err)
	}
	if !hasLog(f.s.Logs(), logbuf.LevelError, "Cannot ping: no robot selected") {
		t.Fatalf("logs missing no-robot entry")
	}

	sock := f.connect(t, "r1")
	sock.end(errBoom)
	waitFor(t, "disconnect", func() bool { return !f.s.IsConnected() })

	if _, err := f.s.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Ping() on closed socket = %v; want ErrNotConnected", err)
	}
	if f.s.PendingPings() != 0 {
		t.Fatalf("PendingPings() = %d; want 0", f.s.PendingPings())
	}
}

func TestDisconnectDropsPendingPings(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	for i := 0; i < 2; i++ {
		if _, err := f.s.Ping(); err != nil {
			t.Fatalf("Ping() error: %v", err)
		}
	}
	if f.s.PendingPings() != 2 {
		t.Fatalf("PendingPings() = %d; want 2", f.s.PendingPings())
	}

	f.s.Disconnect()
	if f.s.PendingPings() != 0 {
		t.Fatalf("PendingPings() after Disconnect = %d; want 0", f.s.PendingPings())
	}
	if !sock.isClosed() {
		t.Fatalf("socket not closed by Disconnect")
	}
	if f.s.Target() != "" {
		t.Fatalf("Target() = %q after Disconnect; want empty", f.s.Target())
	}

	f.clock.Advance(20 * time.Second)
	if hasLog(f.s.Logs(), logbuf.LevelError, pingTimeoutMessage) {
		t.Fatalf("late timeout logged after Disconnect")
	}
	if !hasLog(f.s.Logs(), logbuf.LevelInfo, "Disconnected from robot r1") {
		t.Fatalf("logs missing disconnect entry")
	}
}

func TestSwitchRobotTearsDownOldSocket(t *testing.T) {
	f := newFixture(t)
	first := f.connect(t, "r1")

	first.deliver(t, `{"type":"vision_frame","robotId":"r1","payload":{"mime":"image/jpeg","data":"AA==","width":2,"height":2},"timestamp":5}`)
	waitFor(t, "vision frame", func() bool { _, ok := f.s.LatestVisionFrame(); return ok })

	second := f.connect(t, "r2")
	if !first.isClosed() {
		t.Fatalf("old socket still open after switching robots")
	}
	if second.robotID != "r2" {
		t.Fatalf("new socket dialed for %q; want r2", second.robotID)
	}
	if _, ok := f.s.LatestVisionFrame(); ok {
		t.Fatalf("LatestVisionFrame() survived robot switch")
	}
	if online, _ := f.registry.isOnline("r1"); online {
		t.Fatalf("old robot still online")
	}
	if f.s.Target() != "r2" || !f.s.IsConnected() {
		t.Fatalf("Status() = %+v; want connected to r2", f.s.Status())
	}
}

func TestTransportErrorDisconnectsButKeepsPings(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	if _, err := f.s.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	sock.deliver(t, `{"type":"vision_frame","robotId":"r1","payload":{"mime":"image/jpeg","data":"AA==","width":2,"height":2},"timestamp":5}`)
	waitFor(t, "vision frame", func() bool { _, ok := f.s.LatestVisionFrame(); return ok })

	sock.end(errBoom)
	waitFor(t, "disconnect", func() bool { return !f.s.IsConnected() })

	if !hasLog(f.s.Logs(), logbuf.LevelError, "WebSocket error: boom") {
		t.Fatalf("logs missing transport error: %+v", f.s.Logs())
	}
	if _, ok := f.s.LatestVisionFrame(); ok {
		t.Fatalf("vision frame survived transport error")
	}
	if online, _ := f.registry.isOnline("r1"); online {
		t.Fatalf("robot still online after transport error")
	}
	if f.registry.isSocketOpen() {
		t.Fatalf("socket-open flag still set")
	}
	if f.s.PendingPings() != 1 {
		t.Fatalf("PendingPings() = %d; want 1 (only Disconnect clears)", f.s.PendingPings())
	}
	if f.s.Target() != "r1" {
		t.Fatalf("Target() = %q; want r1 kept for manual reconnect", f.s.Target())
	}
	if f.dialer.dialCount() != 1 {
		t.Fatalf("dial count = %d; want no automatic reconnect", f.dialer.dialCount())
	}
}

func TestNormalCloseIsNotAnError(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.end(wsutil.ClosedError{Code: ws.StatusNormalClosure})
	waitFor(t, "disconnect", func() bool { return !f.s.IsConnected() })

	if n := countLevel(f.s.Logs(), logbuf.LevelError); n != 0 {
		t.Fatalf("error log count = %d; want 0", n)
	}
	if !hasLog(f.s.Logs(), logbuf.LevelInfo, "Disconnected from WebSocket") {
		t.Fatalf("logs missing close entry")
	}
}

func TestReconnectAfterDropDialsAgain(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	sock.end(errBoom)
	waitFor(t, "disconnect", func() bool { return !f.s.IsConnected() })

	f.connect(t, "r1")
	if !f.s.IsConnected() {
		t.Fatalf("IsConnected() = false after manual reconnect")
	}
}

func TestSendWhileClosedLogsOneError(t *testing.T) {
	f := newFixture(t)

	err := f.s.Send(map[string]any{"type": "command"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send() = %v; want ErrNotConnected", err)
	}
	logs := f.s.Logs()
	if len(logs) != 1 || logs[0].Level != logbuf.LevelError {
		t.Fatalf("logs = %+v; want exactly one error entry", logs)
	}
}

func TestSendLogsSerializedPayload(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	if err := f.s.Send(map[string]any{"type": "custom", "n": 1}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(sock.writes()) != 1 {
		t.Fatalf("writes = %d; want 1", len(sock.writes()))
	}
	if !hasLog(f.s.Logs(), logbuf.LevelInfo, `Sent: {"n":1,"type":"custom"}`) {
		t.Fatalf("logs missing sent entry: %+v", f.s.Logs())
	}
}

func TestSendWriteFailure(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	sock.writeErr = errBoom

	err := f.s.Send(map[string]any{"type": "x"})
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeSendFailed {
		t.Fatalf("Send() = %v; want SEND_FAILED", err)
	}
}

func TestSendCommandFrame(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	f.clock.Set(2000)

	if err := f.s.SendCommand("set_speed", map[string]any{"speed": 40}); err != nil {
		t.Fatalf("SendCommand() error: %v", err)
	}
	var frame struct {
		Type      string         `json:"type"`
		RobotID   string         `json:"robotId"`
		Payload   map[string]any `json:"payload"`
		Timestamp int64          `json:"timestamp"`
	}
	if err := json.Unmarshal(sock.writes()[0], &frame); err != nil {
		t.Fatalf("command frame not JSON: %v", err)
	}
	if frame.Type != "command" || frame.RobotID != "r1" || frame.Timestamp != 2000 {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.Payload["action"] != "set_speed" || frame.Payload["speed"] != float64(40) {
		t.Fatalf("payload = %v", frame.Payload)
	}

	if err := f.s.RequestPanoramic(); err != nil {
		t.Fatalf("RequestPanoramic() error: %v", err)
	}
	if err := json.Unmarshal(sock.writes()[1], &frame); err != nil {
		t.Fatalf("panoramic frame not JSON: %v", err)
	}
	if frame.Payload["action"] != "panoramic" {
		t.Fatalf("panoramic payload = %v", frame.Payload)
	}
}

func TestSendCommandWithoutRobot(t *testing.T) {
	f := newFixture(t)
	if err := f.s.SendCommand("stop", nil); !errors.Is(err, ErrNoRobot) {
		t.Fatalf("SendCommand() = %v; want ErrNoRobot", err)
	}
	if err := f.s.SendCommand(" ", nil); err == nil {
		t.Fatalf("SendCommand(\"\") = nil; want error")
	}
}

func TestVisionFramesAreLatestWinsAndUnlogged(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	before := len(f.s.Logs())

	for i := 1; i <= 5; i++ {
		sock.deliver(t, fmt.Sprintf(`{"type":"vision_frame","robotId":"r1","payload":{"mime":"image/jpeg","data":"AA==","width":2,"height":2},"role":"robot","timestamp":%d}`, i))
	}
	waitFor(t, "fifth frame", func() bool {
		vf, ok := f.s.LatestVisionFrame()
		return ok && vf.Timestamp == 5
	})

	if got := len(f.s.Logs()); got != before {
		t.Fatalf("log count = %d; want %d (vision frames never log)", got, before)
	}
	if online, _ := f.registry.isOnline("r1"); !online {
		t.Fatalf("vision frame did not mark robot online")
	}
}

func TestRepeatedLivenessReportedOnce(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")
	events, detach := f.s.Watch()
	defer detach()
	calls := f.registry.statusUpdates()

	const frames = 100
	for i := 1; i <= frames; i++ {
		sock.deliver(t, fmt.Sprintf(`{"type":"vision_frame","robotId":"r1","payload":{"mime":"image/jpeg","data":"AA==","width":2,"height":2},"role":"robot","timestamp":%d}`, i))
	}
	waitFor(t, "last frame", func() bool {
		vf, ok := f.s.LatestVisionFrame()
		return ok && vf.Timestamp == frames
	})

	if got := f.registry.statusUpdates() - calls; got != 1 {
		t.Fatalf("registry status updates after %d frames = %d; want 1", frames, got)
	}
	robotEvents := 0
	for drained := false; !drained; {
		select {
		case evt := <-events:
			if upd, ok := evt.Data.(RobotUpdate); ok && evt.Feed == relay.FeedRobot && upd.Online != nil {
				if !*upd.Online {
					t.Fatalf("robot event Online = false; want true")
				}
				robotEvents++
			}
		default:
			drained = true
		}
	}
	if robotEvents != 1 {
		t.Fatalf("robot liveness events after %d frames = %d; want 1", frames, robotEvents)
	}

	// Teardown forgets the last value so the next session reports again.
	f.s.Disconnect()
	if online, _ := f.registry.isOnline("r1"); online {
		t.Fatalf("robot online after disconnect")
	}
	sock = f.connect(t, "r1")
	sock.deliver(t, `{"type":"telemetry","robotId":"r1","payload":{"battery":50}}`)
	waitFor(t, "online after reconnect", func() bool { online, _ := f.registry.isOnline("r1"); return online })
}

func TestFrameMetricLabelsAreBounded(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	const junk = 50
	for i := 0; i < junk; i++ {
		sock.deliver(t, fmt.Sprintf(`{"type":"junk-%d","robotId":"r1"}`, i))
	}
	sock.deliver(t, `{"type":"telemetry","robotId":"r1","payload":{"battery":42}}`)
	waitFor(t, "telemetry", func() bool { _, ok := f.registry.batteryOf("r1"); return ok })

	received := f.metrics.receivedLabels()
	if len(received) != 2 || received["other"] != junk || received["telemetry"] != 1 {
		t.Fatalf("received labels = %v; want other=%d telemetry=1", received, junk)
	}

	for i := 0; i < 20; i++ {
		if err := f.s.Send(map[string]any{"type": fmt.Sprintf("junk-%d", i)}); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}
	if err := f.s.Send(map[string]any{"robotId": "r1"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if err := f.s.Send(map[string]any{"type": "command", "robotId": "r1"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	sent := f.metrics.sentLabels()
	if len(sent) != 2 || sent["other"] != 21 || sent["command"] != 1 {
		t.Fatalf("sent labels = %v; want other=21 command=1", sent)
	}
}

func TestTelemetryProjectsBattery(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `{"type":"telemetry","robotId":"r1","payload":{"battery":87}}`)
	waitFor(t, "battery", func() bool { _, ok := f.registry.batteryOf("r1"); return ok })

	if pct, _ := f.registry.batteryOf("r1"); pct != 87 {
		t.Fatalf("battery = %v; want 87", pct)
	}
	if online, _ := f.registry.isOnline("r1"); !online {
		t.Fatalf("telemetry did not mark robot online")
	}
	if !hasLog(f.s.Logs(), logbuf.LevelInfo, "Telemetry from r1: battery 87%") {
		t.Fatalf("logs missing telemetry entry: %+v", f.s.Logs())
	}
}

func TestPanoramicImageRetainedUntilCleared(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `{"type":"panoramic_image","robotId":"r1","payload":{"mime":"image/jpeg","data":"AA==","width":1920,"height":480,"captureTime":10}}`)
	waitFor(t, "panorama", func() bool { _, ok := f.s.LatestPanoramicImage(); return ok })

	sock.deliver(t, `{"type":"panoramic_image","robotId":"r1","payload":{"mime":"image/jpeg","data":"AQ==","width":1920,"height":480,"captureTime":20}}`)
	waitFor(t, "second panorama", func() bool {
		img, ok := f.s.LatestPanoramicImage()
		return ok && img.Payload.CaptureTime == 20
	})

	if !hasLog(f.s.Logs(), logbuf.LevelSuccess, "Panoramic image received (1920x480)") {
		t.Fatalf("logs missing panoramic entry")
	}
	f.s.ClearPanoramicImage()
	if _, ok := f.s.LatestPanoramicImage(); ok {
		t.Fatalf("LatestPanoramicImage() after clear = ok")
	}
}

func TestRobotErrorLogged(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `{"type":"error","robotId":"r1","payload":{"message":"motor stalled"}}`)
	waitFor(t, "error log", func() bool { return hasLog(f.s.Logs(), logbuf.LevelError, "Robot error: motor stalled") })
	if !f.s.IsConnected() {
		t.Fatalf("robot error closed the connection")
	}
}

func TestMalformedAndForeignFramesAreLogged(t *testing.T) {
	f := newFixture(t)
	sock := f.connect(t, "r1")

	sock.deliver(t, `not json`)
	waitFor(t, "raw log", func() bool {
		return hasLog(f.s.Logs(), logbuf.LevelInfo, "Received non-JSON message: not json")
	})

	foreign := `{"type":"telemetry","robotId":"r9","payload":{"battery":5}}`
	sock.deliver(t, foreign)
	waitFor(t, "catch-all log", func() bool { return hasLog(f.s.Logs(), logbuf.LevelInfo, "Received: "+foreign) })
	if _, ok := f.registry.batteryOf("r9"); ok {
		t.Fatalf("foreign telemetry applied to registry")
	}

	unknown := `{"type":"robot_status","robotId":"r1"}`
	sock.deliver(t, unknown)
	waitFor(t, "unknown log", func() bool { return hasLog(f.s.Logs(), logbuf.LevelInfo, "Received: "+unknown) })

	if !f.s.IsConnected() {
		t.Fatalf("noise closed the connection")
	}
}

func TestWatchAttachDetachSymmetric(t *testing.T) {
	f := newFixture(t)

	ch1, detach1 := f.s.Watch()
	_, detach2 := f.s.Watch()
	if got := f.s.Listeners(); got != 2 {
		t.Fatalf("Listeners() = %d; want 2", got)
	}

	f.connect(t, "r1")
	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !(seen[relay.FeedConnection] && seen[relay.FeedLog]) {
		select {
		case evt := <-ch1:
			seen[evt.Feed] = true
		case <-timeout:
			t.Fatalf("listener saw feeds %v; want connection and log", seen)
		}
	}

	detach1()
	detach1()
	detach2()
	if got := f.s.Listeners(); got != 0 {
		t.Fatalf("Listeners() = %d; want 0", got)
	}
	for range ch1 {
	}
}

func TestClearLogs(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "r1")
	if len(f.s.Logs()) == 0 {
		t.Fatalf("expected log entries after connect")
	}
	f.s.ClearLogs()
	if got := len(f.s.Logs()); got != 0 {
		t.Fatalf("len(Logs()) = %d; want 0", got)
	}
}

func TestFramesFromStaleSocketIgnored(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "r1")
	f.s.mu.Lock()
	stale := f.s.gen - 1
	f.s.mu.Unlock()

	f.s.handleFrame(stale, []byte(`{"type":"telemetry","robotId":"r1","payload":{"battery":3}}`))
	if _, ok := f.registry.batteryOf("r1"); ok {
		t.Fatalf("stale frame applied")
	}
}

// Any number of sends on a closed session keeps the log within capacity and logs one
// error per call.
func TestClosedSendLogBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("log stays bounded", prop.ForAll(
		func(n int) bool {
			s := New(Options{Dialer: &fakeDialer{}, Clock: newFakeClock(0), Logger: discardLogger()})
			for i := 0; i < n; i++ {
				if !errors.Is(s.Send(i), ErrNotConnected) {
					return false
				}
			}
			want := n
			if want > logbuf.DefaultCapacity {
				want = logbuf.DefaultCapacity
			}
			logs := s.Logs()
			return len(logs) == want && countLevel(logs, logbuf.LevelError) == want
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// After any sequence of vision frames only the last one is cached.
func TestVisionLatestWinsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("latest frame wins", prop.ForAll(
		func(stamps []int64) bool {
			s := New(Options{Dialer: &fakeDialer{}, Clock: newFakeClock(0), Logger: discardLogger()})
			s.mu.Lock()
			s.target = "r1"
			s.state = StateConnected
			current := s.gen
			s.mu.Unlock()

			for _, ts := range stamps {
				s.handleFrame(current, []byte(fmt.Sprintf(`{"type":"vision_frame","robotId":"r1","payload":{"mime":"image/jpeg","data":"","width":1,"height":1},"timestamp":%d}`, ts)))
			}
			vf, ok := s.LatestVisionFrame()
			if len(stamps) == 0 {
				return !ok
			}
			return ok && vf.Timestamp == stamps[len(stamps)-1] && len(s.Logs()) == 0
		},
		gen.SliceOf(gen.Int64Range(0, 1<<40)),
	))

	properties.TestingRun(t)
}
