package session

import "time"

// Clock supplies wall time and one-shot timers. Timers are never cancelled; callbacks
// re-check state when they fire.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }
