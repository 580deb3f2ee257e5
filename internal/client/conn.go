package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/frame"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// ErrServerClosed is returned by Receive when the server sent the close frame.
var ErrServerClosed = errors.New("server closed the connection")

// Conn is a framed connection to a relay.
type Conn struct {
	conn net.Conn
	fr   *frame.Reader
	now  func() time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a relay over TCP.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(c), nil
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, fr: frame.NewReader(c), now: time.Now}
}

// Join asks for a nickname. The server answers with username_confirmed.
func (c *Conn) Join(nickname string) error {
	return c.send(proto.Envelope{Type: proto.TypeJoin, From: nickname})
}

// Say broadcasts text to every other participant.
func (c *Conn) Say(text string) error {
	return c.send(proto.Envelope{Type: proto.TypeMsg, Text: text})
}

// Whisper sends a private message.
func (c *Conn) Whisper(to, text string) error {
	return c.send(proto.Envelope{Type: proto.TypePM, To: to, Text: text})
}

// Typing signals that the user is composing. An empty to broadcasts the signal.
func (c *Conn) Typing(to string) error {
	return c.send(proto.Envelope{Type: proto.TypeTyping, To: to})
}

// StopTyping clears a previous Typing signal.
func (c *Conn) StopTyping(to string) error {
	return c.send(proto.Envelope{Type: proto.TypeStopTyping, To: to})
}

// Receive blocks until the next envelope arrives.
func (c *Conn) Receive() (proto.Envelope, error) {
	payload, err := c.fr.Next()
	if err != nil {
		return proto.Envelope{}, err
	}
	if len(payload) == 0 {
		return proto.Envelope{}, ErrServerClosed
	}
	return proto.Decode(payload)
}

// Close sends the close frame and closes the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = frame.WriteClose(c.conn)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) send(env proto.Envelope) error {
	env.TS = c.now().Unix()
	payload, err := proto.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return frame.Write(c.conn, payload)
}
