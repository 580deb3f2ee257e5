package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/frame"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func createTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(sqlite.Schema)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func startTestServer(t *testing.T, st store.Store) (*httptest.Server, *core.Relay) {
	t.Helper()

	logger := zerolog.Nop()
	var opts []core.Option
	if st != nil {
		opts = append(opts, core.WithRecorder(st))
	}
	relay := core.NewRelay(opts...)

	cfg := config.Default()
	server := NewServer(relay, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = relay.Shutdown(ctx)
		ts.Close()
	})
	return ts, relay
}

func getJSON(t *testing.T, ts *httptest.Server, path string, wantStatus int, out any) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", path, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, env proto.Envelope) {
	t.Helper()
	payload, err := proto.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := frame.Encode(payload)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Envelope {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("expected binary message, got %v", typ)
	}
	payload, err := frame.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("unframe: %v", err)
	}
	env, err := proto.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestWebSocketJoinAndMessage(t *testing.T) {
	ts, relay := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	writeEnvelope(t, ctx, connA, proto.Envelope{Type: proto.TypeJoin, From: "alice"})
	if env := readEnvelope(t, ctx, connA); env.Type != proto.TypeUsernameConfirmed || env.From != "alice" {
		t.Fatalf("unexpected confirmation: %+v", env)
	}
	if env := readEnvelope(t, ctx, connA); !proto.IsFirstUser(env.Text) {
		t.Fatalf("expected first-user greeting: %+v", env)
	}

	connB := dialWS(t, ctx, ts)
	writeEnvelope(t, ctx, connB, proto.Envelope{Type: proto.TypeJoin, From: "bob"})
	readEnvelope(t, ctx, connB)
	readEnvelope(t, ctx, connB)
	readEnvelope(t, ctx, connA) // bob joined
	readEnvelope(t, ctx, connA) // presence list

	writeEnvelope(t, ctx, connA, proto.Envelope{Type: proto.TypeMsg, Text: "hi there"})
	env := readEnvelope(t, ctx, connB)
	if env.Type != proto.TypeMsg || env.From != "alice" || env.Text != "hi there" {
		t.Fatalf("unexpected message: %+v", env)
	}

	if got := relay.Online(); len(got) != 2 {
		t.Fatalf("expected 2 online, got %d", len(got))
	}
}

func TestOnlineEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialWS(t, ctx, ts)
	writeEnvelope(t, ctx, conn, proto.Envelope{Type: proto.TypeJoin, From: "carol"})
	readEnvelope(t, ctx, conn)

	var resp OnlineResponse
	getJSON(t, ts, "/api/online", http.StatusOK, &resp)
	if resp.Count != 1 || len(resp.Users) != 1 || resp.Users[0].Nickname != "carol" {
		t.Fatalf("unexpected online response: %+v", resp)
	}
	if resp.Users[0].ID == "" {
		t.Fatal("expected session id")
	}
}

func TestPresenceEndpoint(t *testing.T) {
	t.Run("disabled audit", func(t *testing.T) {
		ts, _ := startTestServer(t, nil)
		var resp PresenceResponse
		getJSON(t, ts, "/api/presence", http.StatusOK, &resp)
		if resp.Events == nil || len(resp.Events) != 0 {
			t.Fatalf("expected empty event list, got %+v", resp)
		}
		var stats map[string]any
		getJSON(t, ts, "/api/stats", http.StatusOK, &stats)
		if _, ok := stats["sessions_24h"]; ok {
			t.Fatalf("sessions_24h should be omitted: %v", stats)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		ts, _ := startTestServer(t, nil)
		for _, q := range []string{"abc", "0", "-3", "501"} {
			getJSON(t, ts, "/api/presence?limit="+q, http.StatusBadRequest, nil)
		}
	})

	t.Run("recorded events", func(t *testing.T) {
		st := createTestStore(t)
		ts, _ := startTestServer(t, st)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn := dialWS(t, ctx, ts)
		writeEnvelope(t, ctx, conn, proto.Envelope{Type: proto.TypeJoin, From: "dave"})
		readEnvelope(t, ctx, conn)
		readEnvelope(t, ctx, conn)

		deadline := time.Now().Add(2 * time.Second)
		var resp PresenceResponse
		for {
			getJSON(t, ts, "/api/presence?limit=5", http.StatusOK, &resp)
			if len(resp.Events) > 0 || time.Now().After(deadline) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if len(resp.Events) != 1 || resp.Events[0].Nickname != "dave" || resp.Events[0].Kind != "join" {
			t.Fatalf("unexpected events: %+v", resp.Events)
		}

		var stats StatsResponse
		getJSON(t, ts, "/api/stats", http.StatusOK, &stats)
		if stats.Online != 1 || stats.Sessions24h == nil || *stats.Sessions24h != 1 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
	})
}
