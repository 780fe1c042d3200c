// Terminal chat client: streams agent replies from a chat server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kipackjeong/Demo-sub001/internal/client"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws/chat", "chat server WebSocket endpoint")
	turnTimeout := flag.Duration("turn-timeout", 2*time.Minute, "maximum wait for one reply")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	correlator := client.NewCorrelator("cli")

	turnDone := make(chan struct{}, 1)
	signalTurnDone := func() {
		select {
		case turnDone <- struct{}{}:
		default:
		}
	}

	// printed is shared between the read-pump callbacks and the prompt loop.
	var printMu sync.Mutex
	printed := 0
	resetPrinted := func() {
		printMu.Lock()
		printed = 0
		printMu.Unlock()
	}

	assembler := client.NewAssembler(correlator.SessionID(), client.AssemblerEvents{
		OnUpdate: func(partial string) {
			printMu.Lock()
			fmt.Print(partial[printed:])
			printed = len(partial)
			printMu.Unlock()
		},
		OnComplete: func(final string) {
			printMu.Lock()
			if printed < len(final) {
				fmt.Print(final[printed:])
			}
			printMu.Unlock()
			fmt.Println()
			signalTurnDone()
		},
		OnFailed: func(cause string) {
			fmt.Fprintf(os.Stderr, "\nturn failed: %s\n", cause)
			signalTurnDone()
		},
	})

	connected := make(chan struct{}, 1)
	mgr := client.NewManager(client.Config{
		URL:     *url,
		OnFrame: assembler.Handle,
		OnStatus: func(s client.Status) {
			fmt.Fprintf(os.Stderr, "[%s]\n", s)
			if s == client.StatusConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		},
	})
	defer func() { _ = mgr.Close() }()

	if err := mgr.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	select {
	case <-connected:
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "could not reach the server")
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "session %s, type a message and press enter (ctrl-d to quit)\n", correlator.SessionID())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		content := scanner.Text()
		if content == "" {
			continue
		}

		resetPrinted()
		// Drop a stale completion left over from a timed-out turn.
		select {
		case <-turnDone:
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), *turnTimeout)
		if err := mgr.Send(ctx, correlator.UserMessage(content)); err != nil {
			cancel()
			// Frames are never buffered; re-send once reconnected.
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}

		select {
		case <-turnDone:
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "timed out waiting for the reply")
		}
		cancel()
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin: %v\n", err)
		os.Exit(1)
	}
}
