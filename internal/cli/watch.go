package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AzozzALFiras/velo/internal/aggregator"
	"github.com/AzozzALFiras/velo/internal/app"
	"github.com/AzozzALFiras/velo/internal/config"
	"github.com/AzozzALFiras/velo/internal/transport"
)

type snapshotView struct {
	At       time.Time                                `json:"at" yaml:"at" toml:"at"`
	Statuses map[string]map[string]app.SoftwareStatus `json:"statuses" yaml:"statuses" toml:"statuses"`
	Error    string                                   `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

func newWatchCommand(e *env) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch [app...]",
		Short: "Sweep application status on a schedule",
		Long: `Check the status of applications on a cron schedule and print every sweep.
The schedule is a cron expression or a descriptor such as "@every 30s"; it
defaults to watch.schedule from the config. Editing the config file while
watching applies the new log level and schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			hosts := map[string]transport.Runner{}
			var agg *aggregator.Aggregator
			for _, h := range e.targetHosts() {
				c, err := e.client(ctx, h)
				if err != nil {
					return err
				}
				hosts[h] = c.Runner()
				if agg == nil {
					agg = c.Aggregator()
				}
			}

			pinned := schedule != ""
			if !pinned {
				schedule = e.cfg.Watch.Schedule
			}
			changes := e.watchConfig()
			for {
				next, err := e.watch(ctx, agg, hosts, schedule, args, changes, pinned)
				if err != nil || next == "" {
					return err
				}
				e.log.Info("watch schedule changed", zap.String("from", schedule), zap.String("to", next))
				schedule = next
			}
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule (default: watch.schedule from the config)")
	addAllHostsFlag(cmd, e)
	return cmd
}

// watchConfig follows the config file, applying log level changes as they
// arrive. The returned channel carries each valid new config.
func (e *env) watchConfig() <-chan *config.Config {
	changes := make(chan *config.Config, 1)
	if e.v.ConfigFileUsed() == "" {
		return changes
	}
	config.Watch(e.v, func(cfg *config.Config, err error) {
		if err != nil {
			e.log.Warn("ignoring config change", zap.Error(err))
			return
		}
		if err := e.log.SetLevel(cfg.Log.Level); err != nil {
			e.log.Warn("ignoring log level", zap.Error(err))
		}
		select {
		case changes <- cfg:
		default:
		}
	})
	return changes
}

// watch runs one watcher until ctx ends or the configured schedule changes.
// It returns the new schedule, or "" when done.
func (e *env) watch(ctx context.Context, agg *aggregator.Aggregator, hosts map[string]transport.Runner,
	schedule string, ids []string, changes <-chan *config.Config, pinned bool) (string, error) {
	w, err := aggregator.NewWatcher(agg, hosts, schedule, ids...)
	if err != nil {
		return "", err
	}
	snaps, stop := w.Start(ctx)
	defer func() { _ = stop() }()

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return "", nil
			}
			if err := e.printSnapshot(snap); err != nil {
				return "", err
			}
		case cfg := <-changes:
			if !pinned && cfg.Watch.Schedule != "" && cfg.Watch.Schedule != schedule {
				return cfg.Watch.Schedule, nil
			}
		}
	}
}

func (e *env) printSnapshot(snap aggregator.Snapshot) error {
	view := snapshotView{At: snap.At, Statuses: snap.Statuses}
	if snap.Err != nil {
		view.Error = snap.Err.Error()
	}
	return e.print(view, func(w io.Writer) error {
		fmt.Fprintf(w, "# %s\n", snap.At.Format(time.RFC3339))
		if err := hostStatusTable(w, snap.Statuses); err != nil {
			return err
		}
		if view.Error != "" {
			fmt.Fprintf(w, "errors: %s\n", view.Error)
		}
		return nil
	})
}
