// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ManuGH/hostgw/internal/metrics"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Transport errors.
var (
	// ErrTransportClosed is returned by Send after the connection closed.
	ErrTransportClosed = errors.New("ws: transport closed")

	// ErrQueueFull is returned by Send when the outbound queue is full. The
	// frame is dropped rather than blocking the producer on a slow peer.
	ErrQueueFull = errors.New("ws: outbound queue full, frame dropped")
)

const (
	outboundQueue = 256
	writeTimeout  = 10 * time.Second
)

// transport adapts one websocket connection to the session manager's
// Transport port. All writes go through a single pump goroutine so frame
// order is exactly the order of Send calls.
type transport struct {
	conn *websocket.Conn
	out  chan protocol.Message

	once sync.Once
	done chan struct{}
}

func newTransport(conn *websocket.Conn) *transport {
	t := &transport{
		conn: conn,
		out:  make(chan protocol.Message, outboundQueue),
		done: make(chan struct{}),
	}
	go t.writePump()
	return t
}

// Send enqueues msg for the write pump. It never blocks: a stalled peer whose
// queue has filled up loses the frame instead of stalling the producer.
func (t *transport) Send(msg protocol.Message) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	select {
	case t.out <- msg:
		return nil
	default:
		metrics.TransportDrops.Inc()
		return ErrQueueFull
	}
}

func (t *transport) Close() error {
	t.once.Do(func() {
		close(t.done)
	})
	return t.conn.Close()
}

func (t *transport) writePump() {
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.out:
			raw, err := protocol.Encode(msg)
			if err != nil {
				continue
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				_ = t.Close()
				return
			}
		}
	}
}
