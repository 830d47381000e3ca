// Command relaywire-demo is a small reference harness for the
// relaywire client: "publish" sends one message to a channel,
// "subscribe" prints messages arriving on a channel until interrupted.
// It exists to exercise Client against a real origin end to end; it is
// not part of the SDK's public surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/relaywire"
	"github.com/nugget/relaywire/internal/config"
	"github.com/nugget/relaywire/transporthttp"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "relaywire-demo:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: relaywire-demo <publish|subscribe> [flags]")
	}

	switch args[0] {
	case "publish":
		return runPublish(args[1:])
	case "subscribe":
		return runSubscribe(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q (want publish or subscribe)", args[0])
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to relaywire.yaml (searches default locations if omitted)")
	origin := fs.String("origin", "", "override config origin")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path, err := config.FindConfig(*configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if *origin != "" {
		cfg.Origin = *origin
	}
	return cfg, nil
}

func newClient(cfg *config.Config) (*relaywire.Client, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	opts := []transporthttp.Option{
		transporthttp.WithSubscribeTimeout(cfg.SubscribeTimeout),
		transporthttp.WithPublishTimeout(cfg.PublishTimeout),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, transporthttp.WithUserAgent(cfg.UserAgent))
	}
	transport := transporthttp.New(opts...)

	return relaywire.NewClient(cfg.Origin, cfg.PublishKey, cfg.SubscribeKey, transport,
		relaywire.WithLogger(logger),
		relaywire.WithSubscribeQueueSize(cfg.SubscribeQueueSize),
	), nil
}

func runPublish(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	channel := fs.String("channel", "", "channel to publish on (required)")
	message := fs.String("message", "", "raw text payload")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *channel == "" {
		return fmt.Errorf("-channel is required")
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
	defer cancel()

	tt, err := client.Publish(ctx, *channel, *message)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	fmt.Printf("published to %s, timetoken={t:%d r:%d}\n", *channel, tt.Timestamp, tt.Region)
	return nil
}

func runSubscribe(args []string) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	channel := fs.String("channel", "", "channel to subscribe to (required)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *channel == "" {
		return fmt.Errorf("-channel is required")
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := client.Subscribe(ctx, *channel)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	fmt.Printf("subscribed to %s, waiting for messages (ctrl-c to stop)...\n", *channel)
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				fmt.Println("subscription closed")
				return nil
			}
			printMessage(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func printMessage(msg relaywire.Message) {
	var pretty any
	if err := json.Unmarshal(msg.JSON, &pretty); err != nil {
		pretty = string(msg.JSON)
	}
	body, _ := json.Marshal(pretty)
	fmt.Printf("[%s] %s: %s\n", msg.Type.Kind, msg.Channel, body)
}
