// Package telegram adapts Telegram long polling to the message bus.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/picoagent/internal/bus"
	"github.com/nextlevelbuilder/picoagent/internal/channels"
)

// Config is the telegram slice of the runtime configuration.
type Config struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from,omitempty"`
	Proxy     string   `json:"proxy,omitempty"`
}

// Channel polls Telegram and forwards accepted messages to the bus.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg Config, msgBus *bus.MessageBus) (*Channel, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		bot:         bot,
	}, nil
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()
	return nil
}

func (c *Channel) handleMessage(message *telego.Message) {
	if message.Text == "" || message.From == nil {
		return
	}
	senderID := strconv.FormatInt(message.From.ID, 10)
	if message.From.Username != "" {
		senderID = senderID + "|" + message.From.Username
	}
	if !c.Accept(senderID) {
		slog.Debug("telegram message dropped", "sender", senderID)
		return
	}
	c.Bus().PublishInbound(bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  senderID,
		ChatID:    strconv.FormatInt(message.Chat.ID, 10),
		Content:   message.Text,
		Timestamp: time.Unix(message.Date, 0),
	})
}

// Send delivers one outbound message.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Stop cancels polling and waits for the poll goroutine to exit so
// Telegram releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}
