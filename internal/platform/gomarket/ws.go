// Package gomarket is a websocket client for the GoMarket L2 order book
// stream. Each endpoint streams full book snapshots for one venue and
// instrument, e.g.
//
//	wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP
//
// The client delivers raw text frames; parsing belongs to the feed package.
package gomarket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/gorilla/websocket"
)

// DefaultURL is the OKX BTC-USDT perpetual book.
const DefaultURL = "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message or pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// MessageHandler receives every text or binary frame.
type MessageHandler func(raw []byte)

// WSClient owns a single connection. It does not reconnect; once Done is
// closed the client is finished and a new one must be created.
type WSClient struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	handlers  []MessageHandler

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewWSClient creates a client for url. Connect must be called before any
// frames arrive.
func NewWSClient(url string) *WSClient {
	return &WSClient{
		url:  url,
		done: make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.conn != nil {
		return fmt.Errorf("gomarket/ws: connect: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("gomarket/ws: dial %s: %w", w.url, err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// OnMessage registers a handler. Handlers run on the read goroutine in
// registration order.
func (w *WSClient) OnMessage(h MessageHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Done is closed when the connection ends for any reason.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Err reports why the connection ended. It is nil until Done is closed and
// nil after a Close initiated by the caller.
func (w *WSClient) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Close sends a close frame and tears the connection down.
func (w *WSClient) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	w.finish(nil)
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}

func (w *WSClient) finish(err error) {
	w.closeOnce.Do(func() {
		w.err = err
		close(w.done)
	})
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.finish(fmt.Errorf("gomarket/ws: read: %w: %w", domain.ErrWSDisconnect, err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				w.finish(fmt.Errorf("gomarket/ws: ping: %w: %w", domain.ErrWSDisconnect, err))
				_ = conn.Close()
				return
			}
		}
	}
}
