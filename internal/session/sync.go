package session

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Syncer drives refreshes for an open session. The baseline design has
// no server push, so the strategy is pluggable: manual refresh only,
// interval polling, or a push subscription. Run blocks until ctx is
// canceled (session close).
type Syncer interface {
	Run(ctx context.Context, refresh func() error)
}

// Manual performs no background refreshes; the caller refreshes
// explicitly.
type Manual struct{}

func (Manual) Run(context.Context, func() error) {}

// Poll refreshes the session on a fixed interval.
type Poll struct {
	Interval time.Duration
}

func (p Poll) Run(ctx context.Context, refresh func() error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(); err != nil {
				slog.Warn("poll refresh failed", "error", err)
			}
		}
	}
}

// Push subscribes to a websocket event stream and refreshes the session
// whenever the remote announces a new message. Reconnects with a fixed
// delay until the session closes.
type Push struct {
	// URL is the websocket endpoint for the room's event stream,
	// e.g. ws://host/api/chatrooms/42/events.
	URL    string
	UserID int64

	// ReconnectDelay defaults to 3s.
	ReconnectDelay time.Duration
}

type pushEvent struct {
	Type string `json:"type"`
}

func (p Push) Run(ctx context.Context, refresh func() error) {
	delay := p.ReconnectDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}

	header := http.Header{}
	header.Set("userId", strconv.FormatInt(p.UserID, 10))

	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, p.URL, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			slog.Warn("push subscription dial failed", "url", p.URL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		// Unblock ReadJSON when the session closes.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

		for {
			var ev pushEvent
			if err := conn.ReadJSON(&ev); err != nil {
				break
			}
			if ev.Type == "message" {
				if err := refresh(); err != nil {
					slog.Warn("push refresh failed", "error", err)
				}
			}
		}

		stop()
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
