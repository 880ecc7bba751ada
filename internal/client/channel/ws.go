package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ozolins/attachup/internal/common"
	"github.com/ozolins/attachup/internal/wsframe"
)

var errSocketClosed = errors.New("socket channel is not connected")

// WSChannel multiplexes requests over a single persistent websocket
// connection. Responses are correlated to requests by frame ID, so multiple
// uploads may fetch forms concurrently over the same socket.
type WSChannel struct {
	url   string
	token string

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan wsframe.ResponseFrame
}

func NewWSChannel(url, token string) *WSChannel {
	return &WSChannel{
		url:     url,
		token:   token,
		pending: make(map[string]chan wsframe.ResponseFrame),
	}
}

// Connect dials the server and starts the read loop. Calling Connect on an
// already connected channel is a no-op.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	header := http.Header{}
	header.Set(common.AccessTokenHeaderName, "Bearer "+c.token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return common.ErrUnauthorized
		}
		return fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}

	c.conn = conn
	go c.readLoop(conn)
	return nil
}

func (c *WSChannel) CanAcceptRequests() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send writes one request frame and blocks until the matching response frame
// arrives or ctx is done.
func (c *WSChannel) Send(ctx context.Context, req Request) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, errSocketClosed
	}

	id := uuid.NewString()
	ch := make(chan wsframe.ResponseFrame, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	frame := wsframe.RequestFrame{ID: id, Method: req.Method, Path: req.Path, Body: req.Body}
	if err := c.writeJSON(conn, frame); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%w: %w", common.ErrConnectivity, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, errSocketClosed
		}
		if resp.Status < 200 || resp.Status > 299 {
			return nil, fmt.Errorf("socket request failed: status %d: %s", resp.Status, resp.Error)
		}
		return resp.Body, nil
	}
}

// Close tears down the connection and fails all in-flight requests.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.failAllPending()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *WSChannel) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *WSChannel) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *WSChannel) failAllPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var frame wsframe.ResponseFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- frame
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.failAllPending()
}
