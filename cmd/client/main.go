package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Tyrowin/chatroom/internal/client"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"golang.org/x/term"
)

var (
	host   = flag.String("host", "localhost", "Relay host")
	port   = flag.Int("port", 4567, "Relay TCP port")
	wsURL  = flag.String("ws", "", "Connect over WebSocket instead, e.g. ws://localhost:8080/ws")
	origin = flag.String("origin", "http://localhost:8080", "Origin header sent with WebSocket upgrades")
	nick   = flag.String("nick", "", "Nickname to try first")
	debug  = flag.Bool("debug", false, "Log protocol events to stderr")
)

func main() {
	flag.Parse()
	if !*debug {
		log.SetOutput(io.Discard)
	}
	os.Exit(run())
}

// run holds everything that needs deferred cleanup and returns the process
// exit status, since os.Exit skips deferred calls.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := bufio.NewScanner(os.Stdin)
	ui := &terminal{
		out:         os.Stdout,
		lines:       lines,
		first:       *nick,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}

	session, err := dial(ctx, ui)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not connect: %v\n", err)
		return 1
	}
	defer session.Stop()

	if err := session.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not join: %v\n", err)
		return 1
	}
	ui.printf("Joined as %s. Type /help for commands.\n", session.Self().Nickname())

	input := make(chan string)
	go func() {
		defer close(input)
		for lines.Scan() {
			input <- lines.Text()
		}
	}()

	return chat(ctx, session, ui, input)
}

// chat feeds typed lines to the session until the user leaves, the context
// ends or the relay goes away. Only losing the relay is a failure.
func chat(ctx context.Context, session *client.Session, ui *terminal, input <-chan string) int {
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			return 0
		case <-session.Done():
			return 1
		case line, ok := <-input:
			if !ok || !ui.handle(session, line) {
				session.Stop()
				return 0
			}
		}
	}
}

func dial(ctx context.Context, ui *terminal) (*client.Session, error) {
	opts := client.Options{Prompter: ui, Observer: ui}
	if *wsURL != "" {
		opts.Header = http.Header{}
		opts.Header.Set("Origin", *origin)
		return client.DialWebSocket(ctx, *wsURL, opts)
	}
	return client.Dial(ctx, fmt.Sprintf("%s:%d", *host, *port), opts)
}

// terminal is the line-oriented front end: it prompts for nicknames, prints
// the transcript and turns typed lines into messages.
type terminal struct {
	out   io.Writer
	lines *bufio.Scanner
	first string

	// interactive is false when stdin is a pipe; prompts are not printed then.
	interactive bool
}

func (t *terminal) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) PromptNickname(retry bool) (string, error) {
	if !retry && t.first != "" {
		return t.first, nil
	}
	if retry {
		t.printf("That nickname is not available.\n")
	}
	for {
		if t.interactive {
			t.printf("Nickname: ")
		}
		if !t.lines.Scan() {
			return "", errors.New("input closed")
		}
		if candidate := strings.TrimSpace(t.lines.Text()); candidate != "" {
			return candidate, nil
		}
	}
}

func (t *terminal) RosterChanged([]*protocol.Identity) {}

func (t *terminal) HistoryAppended(m protocol.Message) {
	if m.Kind == protocol.KindUpdate {
		t.printf("* %s\n", m.Body)
		return
	}
	t.printf("<%s> %s\n", m.Sender.Nickname(), m.FormattedBody())
}

func (t *terminal) Disconnected(err error) {
	t.printf("Connection to the relay was lost: %v\n", err)
}

// handle processes one typed line. It returns false when the user quits.
func (t *terminal) handle(s *client.Session, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case line == "/quit":
		return false
	case line == "/help":
		t.printf("/users          list participants\n/to NICK TEXT   private message\n/quit           leave\n")
		return true
	case line == "/users":
		for _, u := range s.Users() {
			t.printf("  %s\n", u.Nickname())
		}
		return true
	case strings.HasPrefix(line, "/to "):
		nickname, body, _ := strings.Cut(strings.TrimPrefix(line, "/to "), " ")
		target, ok := s.FindUser(nickname)
		if !ok {
			t.printf("No participant named %q\n", nickname)
			return true
		}
		t.send(s, target, body)
		return true
	default:
		t.send(s, protocol.All, line)
		return true
	}
}

func (t *terminal) send(s *client.Session, target *protocol.Identity, body string) {
	if err := s.SendMessage(target, body); err != nil {
		if errors.Is(err, protocol.ErrBodyTooLong) {
			t.printf("Message too long (at most %d bytes)\n", protocol.MaxBodySize)
			return
		}
		t.printf("Send failed: %v\n", err)
	}
}
