package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Envelope is the wire frame written to the bus for each publish.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Websocket publishes envelopes over a single websocket connection. The
// connection is dialed lazily and redialed on the next publish after a write
// failure; a publish that fails is dropped, matching the at-most-once
// contract.
type Websocket struct {
	url    string
	log    zerolog.Logger
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocket(url string, log zerolog.Logger) *Websocket {
	return &Websocket{
		url:    url,
		log:    log.With().Str("component", "bus").Logger(),
		dialer: websocket.DefaultDialer,
	}
}

func (w *Websocket) Publish(ctx context.Context, topic string, payload []byte) error {
	env := Envelope{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: json.RawMessage(payload),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			return fmt.Errorf("bus dial %s: %w", w.url, err)
		}
		w.conn = conn
		w.log.Info().Str("url", w.url).Msg("bus connected")
	}

	if err := w.conn.WriteJSON(env); err != nil {
		// Drop the connection; the next publish redials.
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("bus write: %w", err)
	}
	return nil
}

// Close shuts down the connection if one is open.
func (w *Websocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
