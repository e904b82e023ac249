package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/structs/internal/events"
	"github.com/alfredjeanlab/structs/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print struct and template lifecycle events from NATS",
	GroupID: "runtime",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("nats-url")
		topic, _ := cmd.Flags().GetString("topic")
		count, _ := cmd.Flags().GetInt("count")
		if url == "" {
			url = cfg.NATSURL
		}
		if url == "" {
			return fmt.Errorf("no NATS URL: set STRUCTS_NATS_URL or --nats-url")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return watch(ctx, cmd.OutOrStdout(), url, topic, count)
	},
}

func init() {
	watchCmd.Flags().String("nats-url", "", "NATS server URL (default from config)")
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
	watchCmd.Flags().Int("count", 0, "exit after this many events (0 = run until interrupted)")
}

// watch prints events until ctx is done or count events were printed.
func watch(ctx context.Context, w io.Writer, url, topic string, count int) error {
	sub, err := events.NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("sk: nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("sk: nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()
	slog.Debug("sk: watching", "topic", topic)

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := printEvent(w, msg); err != nil {
				return err
			}
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

func printEvent(w io.Writer, msg events.Message) error {
	ev, err := msg.Decode()
	if err != nil {
		slog.Warn("sk: undecodable event", "topic", msg.Topic, "err", err)
		ev = string(msg.Data)
	}
	if jsonOutput {
		return printJSON(w, struct {
			Topic string `json:"topic"`
			Event any    `json:"event"`
		}{msg.Topic, ev})
	}
	_, err = fmt.Fprintf(w, "%s %+v\n", ui.RenderAccent(msg.Topic), ev)
	return err
}
