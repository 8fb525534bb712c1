// Package repl is the interactive line-oriented front end of wsclient.
//
// Lines starting with a known slash command control the connection; any
// other non-empty line is sent as a text message.
package repl

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/wsclient/internal/connection"
)

// Session is the part of connection.Manager the REPL drives.
type Session interface {
	Connect(ctx context.Context, address string) error
	Disconnect() error
	SendText(text string) error
	SendBinary(data []byte) error
	State() connection.State
}

const helpText = `commands:
  /connect [address]  open a connection (default address if omitted)
  /disconnect         close the connection
  /toggle             connect when disconnected, otherwise disconnect
  /status             show the connection state
  /binary <text>      send text as a binary message
  /quit, /exit        disconnect and leave
  /help               show this help
anything else is sent as a text message`

// REPL reads commands and messages from an input stream.
type REPL struct {
	session Session
	out     *Printer
	address string
	logger  *slog.Logger
}

// New creates a REPL that connects to address unless told otherwise.
// out should also be registered as the session's observer so that
// notifications and command output do not interleave mid-line.
func New(session Session, out *Printer, address string, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		session: session,
		out:     out,
		address: address,
		logger:  logger,
	}
}

// Run processes lines from in until EOF, /quit or ctx is cancelled.
// A live connection is closed before Run returns.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer r.disconnectIfOpen()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := r.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle executes one line and reports whether the REPL should stop.
func (r *REPL) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.out.Printf("%s", helpText)
	case "/status":
		r.out.Printf("state: %s", r.session.State())
	case "/connect":
		address := r.address
		if arg != "" {
			address = arg
		}
		r.connect(ctx, address)
	case "/disconnect":
		r.report(r.session.Disconnect())
	case "/toggle":
		switch r.session.State() {
		case connection.StateDisconnected:
			r.connect(ctx, r.address)
		case connection.StateConnected:
			r.report(r.session.Disconnect())
		default:
			r.out.Printf("still connecting")
		}
	case "/binary":
		r.report(r.session.SendBinary([]byte(arg)))
	default:
		r.report(r.session.SendText(line))
	}
	return false
}

func (r *REPL) connect(ctx context.Context, address string) {
	r.out.Printf("connecting to %s", address)
	err := r.session.Connect(ctx, address)

	// Handshake failures already reached the observer.
	var terr *connection.TransportError
	if errors.As(err, &terr) {
		return
	}
	r.report(err)
}

func (r *REPL) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrNotConnected):
		r.out.Printf("[error] not connected (use /connect)")
	default:
		r.out.Printf("[error] %v", err)
	}
}

func (r *REPL) disconnectIfOpen() {
	if r.session.State() != connection.StateConnected {
		return
	}
	if err := r.session.Disconnect(); err != nil {
		r.logger.Debug("disconnect on exit", "error", err)
	}
}
