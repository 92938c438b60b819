// Package bus publishes assistant events to an optional websocket hub.
package bus

import (
	"context"
	"fmt"
	log "log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

type Message struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(kind, content string)
}

// Emit publishes through p when one is configured.
func Emit(p Publisher, kind, content string) {
	if p != nil {
		p.Publish(kind, content)
	}
}

type Bus struct {
	url    string
	from   string
	reconn time.Duration
	out    chan Message
}

func New(wsURL, from string) (*Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported bus scheme %q", u.Scheme)
	}

	return &Bus{
		url:    u.String(),
		from:   from,
		reconn: 3 * time.Second,
		out:    make(chan Message, 64),
	}, nil
}

// Publish queues an event. Events are dropped while the queue is full so
// callers never block on the hub.
func (b *Bus) Publish(kind, content string) {
	m := Message{From: b.from, To: "ALL", Kind: kind, Content: content, At: time.Now()}
	select {
	case b.out <- m:
	default:
		log.Debug("Bus queue full, dropping event", "kind", kind)
	}
}

// Run delivers queued events until ctx is done, redialing the hub
// whenever a write fails.
func (b *Bus) Run(ctx context.Context) {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-b.out:
			for {
				if conn == nil {
					conn = b.dial(ctx)
					if conn == nil {
						return
					}
				}
				if err := conn.WriteJSON(m); err != nil {
					log.Warn("Bus write failed", "err", err)
					conn.Close()
					conn = nil
					continue
				}
				break
			}
		}
	}
}

func (b *Bus) dial(ctx context.Context) *websocket.Conn {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
		if err == nil {
			log.Info("Connected to bus", "url", b.url)
			return conn
		}
		log.Debug("Bus dial failed", "url", b.url, "err", err)

		t := time.NewTimer(b.reconn)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
