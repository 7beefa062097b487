package desk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is one open duplex push channel. ReadMessage blocks until a frame
// arrives or the channel fails. WriteMessage may be called concurrently with
// ReadMessage. Close unblocks a pending ReadMessage.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens push channels. A returned error means the handshake failed.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials the desk service over WebSocket.
type WSDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	PingInterval time.Duration
	ReadLimit    int64
}

// NewWSDialer returns a dialer with keep-alive pings every ping (0 disables).
func NewWSDialer(ping time.Duration) *WSDialer {
	return &WSDialer{
		Dialer:       websocket.DefaultDialer,
		PingInterval: ping,
		ReadLimit:    4 << 20,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	log.Debug().Str("url", url).Msg("Dialing desk push channel")

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	wc := &wsConn{conn: conn, done: make(chan struct{})}

	if d.PingInterval > 0 {
		// A dead peer stops answering pings; the read deadline then fails ReadMessage.
		deadline := 2 * d.PingInterval
		conn.SetReadDeadline(time.Now().Add(deadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(deadline))
		})
		go wc.keepAlive(d.PingInterval)
	}
	return wc, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Desk push channel closed unexpectedly")
			}
			return nil, fmt.Errorf("read message failed: %w", err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("Ping failed, closing push channel")
				c.conn.Close()
				return
			}
		}
	}
}
