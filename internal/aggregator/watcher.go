package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"vawter.tech/stopper"

	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/transport"
)

// DefaultSchedule sweeps every minute
const DefaultSchedule = "@every 1m"

// Snapshot is the outcome of one scheduled sweep
type Snapshot struct {
	At       time.Time                                `json:"at"`
	Statuses map[string]map[string]app.SoftwareStatus `json:"statuses"`
	Err      error                                    `json:"-"`
}

// Watcher sweeps a fixed set of hosts on a cron schedule and publishes
// each result as a Snapshot
type Watcher struct {
	agg      *Aggregator
	hosts    map[string]transport.Runner
	ids      []string
	schedule cron.Schedule
	now      func() time.Time
}

// NewWatcher parses spec, a standard cron expression or a descriptor such
// as "@every 30s", and returns a watcher over hosts. ids limits the
// applications checked; empty means all.
func NewWatcher(agg *Aggregator, hosts map[string]transport.Runner, spec string, ids ...string) (*Watcher, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("watch schedule %q: %w", spec, err)
	}
	return &Watcher{agg: agg, hosts: hosts, ids: ids, schedule: sched, now: time.Now}, nil
}

// Next returns the first sweep time after t
func (w *Watcher) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// SweepNow runs one sweep synchronously
func (w *Watcher) SweepNow(ctx context.Context) Snapshot {
	statuses, err := w.agg.SweepHosts(ctx, w.hosts, w.ids...)
	return Snapshot{At: w.now(), Statuses: statuses, Err: err}
}

// Start runs an immediate sweep and then one per schedule tick until ctx is
// canceled or the returned stop function is called. The channel is closed
// when the watcher has stopped.
func (w *Watcher) Start(ctx context.Context) (<-chan Snapshot, func() error) {
	ch := make(chan Snapshot, 1)
	sctx := stopper.WithContext(ctx)
	log := w.agg.log.With(zap.Int("hosts", len(w.hosts)))

	publish := func(s Snapshot) bool {
		select {
		case ch <- s:
			return true
		case <-sctx.Stopping():
			return false
		case <-ctx.Done():
			return false
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		defer close(ch)
		if !publish(w.SweepNow(ctx)) {
			return nil
		}
		for {
			next := w.schedule.Next(w.now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-sctx.Stopping():
				timer.Stop()
				return nil
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			snap := w.SweepNow(ctx)
			if snap.Err != nil {
				log.Warn("scheduled sweep had failures", zap.Error(snap.Err))
			}
			if !publish(snap) {
				return nil
			}
		}
	})

	stop := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}
	return ch, stop
}
