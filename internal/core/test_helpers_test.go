package core

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/frame"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func newTestRelay(t testing.TB, opts ...Option) (*Relay, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r := NewRelay(opts...)
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = r.Shutdown(shutdownCtx)
	})
	return r, ctx
}

// testClient is the peer side of a relay connection.
type testClient struct {
	conn   net.Conn
	in     chan proto.Envelope
	closed chan struct{}
}

func connect(t testing.TB, r *Relay, ctx context.Context) *testClient {
	t.Helper()
	return connectWrapped(t, r, ctx, nil)
}

func connectWrapped(t testing.TB, r *Relay, ctx context.Context, wrap func(net.Conn) net.Conn) *testClient {
	t.Helper()

	server, client := net.Pipe()
	var conn net.Conn = server
	if wrap != nil {
		conn = wrap(server)
	}
	go func() { _ = r.Handle(ctx, conn) }()

	c := &testClient{
		conn:   client,
		in:     make(chan proto.Envelope, 256),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = client.Close() })
	return c
}

func (c *testClient) readLoop() {
	defer close(c.closed)
	for {
		payload, err := frame.Read(c.conn)
		if err != nil || len(payload) == 0 {
			return
		}
		env, err := proto.Decode(payload)
		if err != nil {
			return
		}
		c.in <- env
	}
}

func (c *testClient) send(t testing.TB, env proto.Envelope) {
	t.Helper()
	payload, err := proto.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := frame.Write(c.conn, payload); err != nil {
		t.Fatalf("send %s: %v", env.Type, err)
	}
}

func (c *testClient) sendRaw(t testing.TB, payload []byte) {
	t.Helper()
	if err := frame.Write(c.conn, payload); err != nil {
		t.Fatalf("send raw: %v", err)
	}
}

// next returns the very next envelope, enforcing arrival order.
func (c *testClient) next(t testing.TB) proto.Envelope {
	t.Helper()
	select {
	case env := <-c.in:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("expected an envelope, none received")
		return proto.Envelope{}
	}
}

// nextSys returns the next envelope and requires it to be a sys notice with text.
func (c *testClient) nextSys(t testing.TB, text string) {
	t.Helper()
	env := c.next(t)
	if env.Type != proto.TypeSys || env.Text != text {
		t.Fatalf("expected sys %q, got %+v", text, env)
	}
}

// expectNone fails if anything arrives within d.
func (c *testClient) expectNone(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case env := <-c.in:
		t.Fatalf("expected no delivery, got %+v", env)
	case <-time.After(d):
	}
}

func (c *testClient) waitClosed(t testing.TB) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed by the relay")
	}
}

// mustEnvelope skips envelopes until one matches typ and text (empty text matches any).
func mustEnvelope(t testing.TB, ch <-chan proto.Envelope, typ proto.Type, text string) proto.Envelope {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Type == typ && (text == "" || env.Text == text) {
				return env
			}
		case <-deadline:
			t.Fatalf("expected %s %q not received", typ, text)
			return proto.Envelope{}
		}
	}
}

// join connects a client, joins as nick and drains the notices the join
// produces on the client itself and on every already joined peer.
func join(t testing.TB, r *Relay, ctx context.Context, nick string, peers ...*testClient) *testClient {
	t.Helper()

	c := connect(t, r, ctx)
	c.send(t, proto.Envelope{Type: proto.TypeJoin, From: nick, TS: 1})
	if env := c.next(t); env.Type != proto.TypeUsernameConfirmed {
		t.Fatalf("expected username_confirmed, got %+v", env)
	}
	if env := c.next(t); env.Type != proto.TypeSys {
		t.Fatalf("expected greeting, got %+v", env)
	}
	for _, p := range peers {
		if env := p.next(t); env.Type != proto.TypeSys {
			t.Fatalf("expected join notice, got %+v", env)
		}
		if env := p.next(t); env.Type != proto.TypeSys {
			t.Fatalf("expected presence refresh, got %+v", env)
		}
	}
	return c
}
