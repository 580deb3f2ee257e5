package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8081/ws", "admin WebSocket address")
	nick := flag.String("nick", "tester", "nickname to join with")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn := client.NewConn(websocket.NetConn(ctx, ws, websocket.MessageBinary))
	defer conn.Close()

	if err := conn.Join(*nick); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	confirmed := false
	for {
		env, err := conn.Receive()
		if err != nil {
			if errors.Is(err, client.ErrServerClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("received type=%s from=%q text=%q\n", env.Type, env.From, env.Text)

		if env.Type == proto.TypeUsernameConfirmed && !confirmed {
			confirmed = true
			if err := conn.Say(*text); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
