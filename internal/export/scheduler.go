package export

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/workq/internal/metrics"
)

// Destination is an export target.
type Destination interface {
	// Name labels the destination in logs and metrics.
	Name() string
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports to its destinations at a fixed interval. A failed
// cycle is logged and the next tick starts from scratch.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start runs one export immediately and then one per interval.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for a running export to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single export cycle and reports how many
// destinations accepted the snapshot.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	var buf bytes.Buffer
	if err := WriteJSONL(ctx, s.source, &buf, s.now()); err != nil {
		metrics.ExportRuns.WithLabelValues("snapshot", "error").Inc()
		s.logger.Error("export snapshot failed", "err", err)
		return 0
	}
	data := buf.Bytes()

	ok := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			metrics.ExportRuns.WithLabelValues(dest.Name(), "error").Inc()
			s.logger.Error("export destination write failed", "destination", dest.Name(), "err", err)
			continue
		}
		metrics.ExportRuns.WithLabelValues(dest.Name(), "ok").Inc()
		ok++
	}

	s.logger.Info("export completed", "destinations", ok, "bytes", len(data))
	return ok
}
