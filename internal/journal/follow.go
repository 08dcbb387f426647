package journal

import (
	"context"
	"errors"
	"time"

	"github.com/medirunner/console/internal/relay"
)

// Record is one journal line.
type Record struct {
	Time time.Time `json:"time"`
	Feed string    `json:"feed"`
	Data any       `json:"data"`
}

// journaled lists the feeds worth keeping. Camera feeds are excluded; panoramas have
// their own archive.
var journaled = map[string]bool{
	relay.FeedConnection:  true,
	relay.FeedLog:         true,
	relay.FeedLogsCleared: true,
	relay.FeedRobot:       true,
}

// Follow writes session events to w until ctx is done, the channel closes or w is
// closed. A full buffer drops the record and keeps following.
func Follow(ctx context.Context, w *Writer, events <-chan relay.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if !journaled[evt.Feed] {
				continue
			}
			if err := w.Write(Record{Time: w.now(), Feed: evt.Feed, Data: evt.Data}); errors.Is(err, ErrClosed) {
				return
			}
		}
	}
}
