package cmd

import (
	"context"
	"errors"
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
	"github.com/nextlevelbuilder/picoagent/internal/channels/discord"
	"github.com/nextlevelbuilder/picoagent/internal/channels/telegram"
	"github.com/nextlevelbuilder/picoagent/internal/cron"
	"github.com/nextlevelbuilder/picoagent/internal/gateway"
	"github.com/nextlevelbuilder/picoagent/internal/heartbeat"
	"github.com/nextlevelbuilder/picoagent/internal/tracing"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the full runtime: channels, cron, heartbeat, MCP and the HTTP gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()
	cfg := loadConfigOrExit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(exitConfig)
	}

	if cfg.Telemetry.Enabled {
		flush, err := tracing.Setup(ctx, tracing.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			slog.Warn("telemetry disabled", "error", err)
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				flush(flushCtx)
			}()
		}
	}

	if rt.library != nil {
		if err := rt.library.Watch(ctx); err != nil {
			slog.Warn("skill hot reload unavailable", "error", err)
		}
	}

	mgr := channels.NewManager(rt.msgBus)
	if cfg.Channels.Telegram.Enabled {
		ch, err := telegram.New(telegram.Config{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Proxy:     cfg.Channels.Telegram.Proxy,
		}, rt.msgBus)
		if err != nil {
			slog.Error("telegram channel unavailable", "error", err)
		} else {
			mgr.Register(ch)
		}
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := discord.New(discord.Config{
			Token:     cfg.Channels.Discord.Token,
			AllowFrom: cfg.Channels.Discord.AllowFrom,
		}, rt.msgBus)
		if err != nil {
			slog.Error("discord channel unavailable", "error", err)
		} else {
			mgr.Register(ch)
		}
	}
	mgr.StartAll(ctx)

	cronRunner := cron.NewRunner(rt.cronStore, func(ctx context.Context, job cron.Job) error {
		reply, err := rt.loop.Turn(ctx, agent.Request{
			SessionKey: job.Channel + ":" + job.ChatID,
			Channel:    job.Channel,
			ChatID:     job.ChatID,
			Content:    job.Message,
		})
		if err != nil {
			return err
		}
		if job.Channel != "" && job.ChatID != "" {
			rt.msgBus.PublishOutbound(bus.OutboundMessage{Channel: job.Channel, ChatID: job.ChatID, Content: reply})
		}
		return nil
	})
	go cronRunner.Run(ctx)

	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewRunner(cfg.HeartbeatPath(),
			time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second,
			func(ctx context.Context, message string) error {
				reply, err := rt.loop.Turn(ctx, agent.Request{
					SessionKey: "heartbeat:default",
					Channel:    "heartbeat",
					ChatID:     "default",
					Content:    message,
				})
				if err != nil {
					return err
				}
				slog.Info("heartbeat completed", "response_chars", len(reply))
				return nil
			})
		go hb.Run(ctx)
		slog.Info("heartbeat enabled", "file", cfg.HeartbeatPath(), "interval_s", cfg.Heartbeat.IntervalSeconds)
	}

	server := gateway.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, rt.loop, rt.msgBus, nil)
	runErr := server.Run(ctx)

	slog.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.StopAll(stopCtx)
	rt.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", runErr)
		os.Exit(exitUser)
	}
}
