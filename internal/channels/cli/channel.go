// Package cli is the interactive terminal channel used by `picoagent agent`.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/bus"
	"github.com/nextlevelbuilder/picoagent/internal/channels"
)

// ChatID is the single conversation id of the terminal channel.
const ChatID = "local"

// Channel reads lines from stdin and prints responses to stdout.
type Channel struct {
	*channels.BaseChannel
	in     io.Reader
	out    io.Writer
	cancel context.CancelFunc
	done   chan struct{}
}

func New(msgBus *bus.MessageBus) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("cli", msgBus, nil),
		in:          os.Stdin,
		out:         os.Stdout,
	}
}

// Start begins reading lines. EOF (ctrl-d) or "exit" stops the reader.
func (c *Channel) Start(ctx context.Context) error {
	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.SetRunning(true)

	go func() {
		defer close(c.done)
		scanner := bufio.NewScanner(c.in)
		fmt.Fprint(c.out, "> ")
		for scanner.Scan() {
			if readCtx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				fmt.Fprint(c.out, "> ")
				continue
			}
			if line == "exit" || line == "quit" {
				return
			}
			c.Bus().PublishInbound(bus.InboundMessage{
				Channel:   c.Name(),
				SenderID:  "local",
				ChatID:    ChatID,
				Content:   line,
				Timestamp: time.Now(),
			})
		}
	}()
	return nil
}

// Send prints the response and a fresh prompt.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	_, err := fmt.Fprintf(c.out, "%s\n> ", msg.Content)
	return err
}

func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Wait blocks until the reader goroutine exits (EOF or "exit").
func (c *Channel) Wait() <-chan struct{} {
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}
