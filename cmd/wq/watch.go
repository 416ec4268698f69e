package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/events"
)

var watchCmd = &cobra.Command{
	Use:     "watch <query-id>",
	Short:   "Re-run a saved query whenever work packages or the query change",
	GroupID: "queries",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		req, err := runRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" && interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		w := &watcher{
			out: cmd.OutOrStdout(),
			run: func(ctx context.Context) (*client.Collection, error) {
				return api.RunQuery(ctx, id, req)
			},
		}
		ctx := cmd.Context()
		if err := w.refresh(ctx); err != nil {
			return err
		}
		if natsURL != "" {
			return w.watchNATS(ctx, natsURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

// watcher re-runs a query and prints the page when it differs from the
// last one printed.
type watcher struct {
	out  io.Writer
	run  func(ctx context.Context) (*client.Collection, error)
	last string
}

func (w *watcher) refresh(ctx context.Context) error {
	res, err := w.run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	key := fingerprint(res)
	if key == w.last {
		return nil
	}
	w.last = key
	fmt.Fprintf(w.out, "--- %s\n", time.Now().Format("15:04:05"))
	if jsonOutput {
		return printJSON(w.out, res)
	}
	return printCollection(w.out, res)
}

// fingerprint identifies a result page by its total and the cells shown.
func fingerprint(c *client.Collection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", c.Total)
	for _, el := range c.Embedded.Elements {
		for _, col := range c.Columns {
			b.WriteString(formatCell(el[col]))
			b.WriteByte('\x1f')
		}
		b.WriteByte('\n')
	}
	for _, g := range c.Embedded.Groups {
		fmt.Fprintf(&b, "%v=%d;", g.Value, g.Count)
	}
	return b.String()
}

// watchNATS re-runs the query on workq events, debounced.
func (w *watcher) watchNATS(ctx context.Context, natsURL string) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			debounce.Reset(200 * time.Millisecond)
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			if err := w.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *watcher) watchPoll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := w.refresh(ctx); err != nil {
			return err
		}
	}
}

func defaultNATSURL() string {
	if s := os.Getenv("WORKQ_NATS_URL"); s != "" {
		return s
	}
	return loadActiveRemote().NATSURL
}

func init() {
	addRunFlags(watchCmd.Flags())
	watchCmd.Flags().Duration("interval", 5*time.Second, "poll interval when NATS is not configured")
	watchCmd.Flags().String("nats", defaultNATSURL(), "NATS URL for change events (default: $WORKQ_NATS_URL or the active remote)")
}
