package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/picoagent/internal/agent"
	"github.com/nextlevelbuilder/picoagent/internal/bus"
	"github.com/nextlevelbuilder/picoagent/internal/channels"
	"github.com/nextlevelbuilder/picoagent/internal/channels/cli"
)

func agentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent on the terminal",
		Run: func(cmd *cobra.Command, args []string) {
			runAgent()
		},
	}
}

func runAgent() {
	setupLogging()
	cfg := loadConfigOrExit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(exitConfig)
	}

	if rt.library != nil {
		if err := rt.library.Watch(ctx); err != nil {
			slog.Warn("skill hot reload unavailable", "error", err)
		}
	}

	mgr := channels.NewManager(rt.msgBus)
	console := cli.New(rt.msgBus)
	mgr.Register(console)
	mgr.StartAll(ctx)

	go pumpTurns(ctx, rt)

	fmt.Println("picoagent ready. Type a message, or 'exit' to quit.")
	select {
	case <-ctx.Done():
	case <-console.Wait():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.StopAll(stopCtx)
	rt.shutdown()
}

// pumpTurns feeds inbound bus messages through the turn engine and
// publishes replies back for channel dispatch.
func pumpTurns(ctx context.Context, rt *runtime) {
	for {
		msg, ok := rt.msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		reply, err := rt.loop.Turn(ctx, agent.Request{
			SessionKey: msg.SessionKey(),
			Channel:    msg.Channel,
			ChatID:     msg.ChatID,
			Content:    msg.Content,
		})
		if err != nil {
			slog.Error("turn failed", "session", msg.SessionKey(), "error", err)
			continue
		}
		rt.msgBus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: reply})
	}
}
