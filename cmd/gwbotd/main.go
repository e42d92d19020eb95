// Command gwbotd runs the bot's long-poll driver loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gnuweeb/tgbot/botlog"
	"github.com/gnuweeb/tgbot/botloop"
	"github.com/gnuweeb/tgbot/chatapi"
	"github.com/gnuweeb/tgbot/config"
	"github.com/gnuweeb/tgbot/handler"
	"github.com/gnuweeb/tgbot/modules/ping"
	"github.com/gnuweeb/tgbot/ring"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gwbotd",
		Short: "GNU/Weeb chat bot daemon",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll for updates and dispatch them to installed modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := botlog.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := chatapi.New(cfg.BotToken, chatapi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	registry := handler.New(ping.New(client))

	r, err := ring.New(cfg.RingSize, ring.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("gwbotd: init ring: %w", err)
	}
	defer r.Close()

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	loop := botloop.New(r, client, registry, logger)
	return loop.Run(ctx)
}
