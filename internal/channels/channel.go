// Package channels connects external platforms (Telegram, Discord, the
// local CLI) to the agent runtime via the message bus.
package channels

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/picoagent/internal/bus"
)

// Channel is the adapter contract. Start must be non-blocking after
// setup; inbound messages go to the bus, Send delivers responses.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannel provides the shared allowlist and running-state plumbing.
// Channel implementations embed it.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string
	limiter   *SenderLimiter
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		limiter:   NewSenderLimiter(),
	}
}

func (c *BaseChannel) Name() string            { return c.name }
func (c *BaseChannel) IsRunning() bool         { return c.running }
func (c *BaseChannel) SetRunning(running bool) { c.running = running }
func (c *BaseChannel) Bus() *bus.MessageBus    { return c.bus }

// IsAllowed checks a sender against the allowlist. Supports the compound
// "id|username" form on either side; an empty allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	idPart, userPart := splitCompound(senderID)
	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser := splitCompound(trimmed)
		if senderID == allowed || senderID == trimmed ||
			idPart == allowed || idPart == trimmed || idPart == allowedID ||
			(allowedUser != "" && (senderID == allowedUser || userPart == allowedUser)) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed)) {
			return true
		}
	}
	return false
}

// Accept runs the allowlist and rate-limit gates for an inbound sender.
func (c *BaseChannel) Accept(senderID string) bool {
	return c.IsAllowed(senderID) && c.limiter.Allow(senderID)
}

func splitCompound(s string) (id, user string) {
	if idx := strings.Index(s, "|"); idx > 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}
