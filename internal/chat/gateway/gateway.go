// Package gateway connects to a chat relay over a JSON websocket protocol.
//
// Inbound:  {"op":"message","d":{...chat.Message}}
// Outbound: {"op":"send"|"dm","id":"<uuid>","d":{...}}
// Ack:      {"op":"ack","id":"<uuid>","error":""}
//
// A send resolves when the relay acks the frame id. A non-empty error or no
// ack within SendTimeout is a failure.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/botwatch/internal/chat"
	"github.com/hamed0406/botwatch/internal/metrics"
)

const (
	opMessage = "message"
	opSend    = "send"
	opDM      = "dm"
	opAck     = "ack"

	writeWait = 5 * time.Second
)

var (
	ErrNotConnected = errors.New("gateway: not connected")
	ErrAckTimeout   = errors.New("gateway: ack timeout")
	errConnLost     = "connection lost"
)

type frame struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	D     json.RawMessage `json:"d,omitempty"`
	Error string          `json:"error,omitempty"`
}

type channelPayload struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type dmPayload struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// Publisher receives inbound messages; *chat.Bus satisfies it.
type Publisher interface {
	Publish(chat.Message)
}

type Config struct {
	URL         string
	Token       string
	SendTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

type Client struct {
	cfg    Config
	pub    Publisher
	log    *zap.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan string

	writeMu sync.Mutex
}

var _ chat.Sender = (*Client)(nil)

func New(cfg Config, pub Publisher, log *zap.Logger) *Client {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		pub:     pub,
		log:     log,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: make(map[string]chan string),
	}
}

// Run keeps a connection open until ctx is done, reconnecting with
// exponential backoff. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		connectedAt := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a session that lived for a while resets the backoff
		if time.Since(connectedAt) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
		}
		c.log.Warn("gateway_disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		metrics.IncGatewayReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// Connected reports whether a relay session is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) session(ctx context.Context) error {
	hdr := http.Header{}
	if c.cfg.Token != "" {
		hdr.Set("Authorization", "Bot "+c.cfg.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.log.Info("gateway_connected", zap.String("url", c.cfg.URL))

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	err = c.readLoop(conn)
	close(stop)
	conn.Close()
	c.dropConn(conn)
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Debug("gateway_bad_frame", zap.Error(err))
			continue
		}
		switch f.Op {
		case opMessage:
			var m chat.Message
			if err := json.Unmarshal(f.D, &m); err != nil {
				c.log.Debug("gateway_bad_message", zap.Error(err))
				continue
			}
			if m.Timestamp.IsZero() {
				m.Timestamp = time.Now().UTC()
			}
			if c.pub != nil {
				c.pub.Publish(m)
			}
		case opAck:
			c.resolve(f.ID, f.Error)
		}
	}
}

// dropConn clears the current connection and fails every in-flight send.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		ch <- errConnLost
		delete(c.pending, id)
	}
}

func (c *Client) resolve(id, errText string) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- errText
	}
}

func (c *Client) SendToChannel(ctx context.Context, channelID, text string) error {
	return c.send(ctx, opSend, channelPayload{ChannelID: channelID, Content: text})
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, text string) error {
	return c.send(ctx, opDM, dmPayload{UserID: userID, Content: text})
}

func (c *Client) send(ctx context.Context, op string, payload any) error {
	d, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: encode %s: %w", op, err)
	}
	id := uuid.NewString()
	ack := make(chan string, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[id] = ack
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(frame{Op: op, ID: id, D: d})
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("gateway: write %s: %w", op, err)
	}

	timer := time.NewTimer(c.cfg.SendTimeout)
	defer timer.Stop()
	select {
	case errText := <-ack:
		if errText != "" {
			return fmt.Errorf("gateway: %s rejected: %s", op, errText)
		}
		return nil
	case <-timer.C:
		forget()
		return ErrAckTimeout
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}
