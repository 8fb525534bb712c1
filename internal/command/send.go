package command

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/wsclient/internal/connection"
	"github.com/rickgao/wsclient/internal/repl"
)

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Connect, send messages, print replies and disconnect",
		ArgsUsage: "[MESSAGE...]",
		Description: "Each argument is sent as one message. Without arguments, " +
			"each line of standard input is sent as one message.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "binary",
				Aliases: []string{"b"},
				Usage:   "Send messages as binary frames",
			},
			&cli.DurationFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "How long to wait for replies before disconnecting",
				Value:   time.Second,
			},
			&cli.DurationFlag{
				Name:  "flush-timeout",
				Usage: "How long to wait for queued messages to be written",
				Value: 5 * time.Second,
			},
		},
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	flags, cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	messages := c.Args().Slice()
	if len(messages) == 0 {
		scanner := bufio.NewScanner(c.App.Reader)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				messages = append(messages, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if len(messages) == 0 {
		return errors.New("nothing to send")
	}

	printer := repl.NewPrinter(c.App.Writer)

	cl, err := newClient(c.Context, cfg, flags.MetricsAddr, printer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.close(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	address := cfg.Connection.Address
	if err := cl.manager.Connect(c.Context, address); err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}

	send := cl.manager.SendText
	if c.Bool("binary") {
		send = func(text string) error {
			return cl.manager.SendBinary([]byte(text))
		}
	}

	target := cl.manager.Stats().MessagesSent
	for i, msg := range messages {
		if err := send(msg); err != nil {
			return fmt.Errorf("send message %d: %w", i+1, err)
		}
		target++
	}

	if !waitSent(c.Context, cl.manager, target, c.Duration("flush-timeout")) {
		logger.Warn("not every message was written", "queued", len(messages))
	}

	if wait := c.Duration("wait"); wait > 0 {
		select {
		case <-time.After(wait):
		case <-c.Context.Done():
		}
	}

	// The peer may have closed the connection while we waited.
	if err := cl.manager.Disconnect(); err != nil && !errors.Is(err, connection.ErrInvalidState) {
		return err
	}
	return nil
}
