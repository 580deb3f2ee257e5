package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/client"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func newChatCmd() *cobra.Command {
	var addr, nick string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to a relay as a line-based client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, addr, nick, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "relay address")
	cmd.Flags().StringVar(&nick, "nick", "", "nickname to request")
	_ = cmd.MarkFlagRequired("nick")
	return cmd
}

var (
	typingTimeout       = client.DefaultTypingTimeout
	typingSweepInterval = time.Second
)

func runChat(ctx context.Context, addr, nick string, in io.Reader, out io.Writer) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Join(nick); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	presence := client.NewPresence(nick)
	typing := client.NewTypingSet(typingTimeout)
	recvErr := make(chan error, 1)
	go func() {
		for {
			env, err := conn.Receive()
			if err != nil {
				recvErr <- err
				return
			}
			presence.Apply(env)
			switch env.Type {
			case proto.TypeTyping:
				typing.Mark(env.From, time.Now())
				continue
			case proto.TypeStopTyping:
				typing.Clear(env.From)
				continue
			case proto.TypeMsg, proto.TypePM:
				typing.Clear(env.From)
			}
			if line := client.Render(env); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	sweep := time.NewTicker(typingSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweep.C:
			for _, nick := range typing.Prune(now) {
				fmt.Fprintf(out, "* %s stopped typing\n", nick)
			}
		case err := <-recvErr:
			if errors.Is(err, client.ErrServerClosed) {
				fmt.Fprintln(out, "* server closed the connection")
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(conn, presence, typing, strings.TrimSpace(line), out); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(conn *client.Conn, presence *client.Presence, typing *client.TypingSet, line string, out io.Writer) error {
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case line == "/who":
		typing.Prune(time.Now())
		fmt.Fprintf(out, "* online: %s\n", strings.Join(presence.Users(), ", "))
		if active := typing.Active(); len(active) > 0 {
			fmt.Fprintf(out, "* typing: %s\n", strings.Join(active, ", "))
		}
		return nil
	case client.IsWhisper(line):
		to, text, ok := client.ParseWhisper(line)
		if !ok {
			fmt.Fprintln(out, client.WhisperUsage)
			return nil
		}
		return conn.Whisper(to, text)
	default:
		return conn.Say(line)
	}
}
