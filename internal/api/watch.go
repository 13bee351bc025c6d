package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hint is a server push on the match channel. Hints only nudge the poll
// loop; the partner itself is always fetched through TodayMatch.
type Hint struct {
	Type string `json:"type"` // "info" | "match_ready"
	Data any    `json:"data,omitempty"`
}

// HintMatchReady is sent when today's match has been computed.
const HintMatchReady = "match_ready"

// WatchMatches opens the websocket hint stream. The returned channel is
// closed when ctx ends or the connection drops.
func (c *Client) WatchMatches(ctx context.Context) (<-chan Hint, error) {
	wsURL, err := c.wsURL("/api/v1/ws/match")
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Op: "watch matches", StatusCode: resp.StatusCode}
		}
		return nil, &NetworkError{Op: "watch matches", Err: err}
	}

	out := make(chan Hint, 4)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(done)
		for {
			var h Hint
			if err := conn.ReadJSON(&h); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("match hint stream closed", zap.Error(err))
				}
				return
			}
			select {
			case out <- h:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
