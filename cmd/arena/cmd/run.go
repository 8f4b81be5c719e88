package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillm/agent-arena/internal/scheduler"
	"github.com/kirillm/agent-arena/internal/tasks"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tournament scheduler",
	Long: `Run starts the scheduler and its worker pool.

Live tournaments get a decision cycle per agent every DECISION_INTERVAL,
tournament status and ranks are kept current, and agents whose snapshot is
older than STALE_THRESHOLD are recovered. Metrics are served on METRICS_ADDR.

SIGUSR1 activates the kill switch and SIGUSR2 clears it. While it is active
cycles keep running and persisting but no trades execute.`,
	RunE: runArena,
}

var runHalted bool

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runHalted, "halt", false, "start with the kill switch active (cycles run, no trades execute)")
}

func runArena(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runHalted {
		a.gate.KillSwitch().Activate("started with --halt")
	}
	a.metrics.KillSwitch(a.gate.KillSwitch().IsActive())

	sc := a.cfg.Scheduler
	var limiter *rate.Limiter
	if sc.DecisionRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(sc.DecisionRate), sc.DecisionBurst)
	}

	var sched *scheduler.Scheduler
	queue := tasks.NewQueue(tasks.Config{
		Workers: sc.Workers,
		Retry: tasks.RetryConfig{
			MaxAttempts: sc.MaxAttempts,
			BaseDelay:   sc.RetryBaseDelay,
			MaxDelay:    sc.DecisionInterval,
			Multiplier:  2,
		},
		Budget:    sc.CycleBudget,
		Limiter:   limiter,
		OnFailure: func(t tasks.Task, err error) { sched.TaskFailed(t, err) },
		OnRetry:   func(t tasks.Task, err error) { sched.TaskRetried(t, err) },
	}, a.logger.Named("tasks"))

	sched = scheduler.New(a.schedulerConfig(), scheduler.Deps{
		Store:    a.store,
		Factory:  a.factory,
		Queue:    queue,
		Notifier: a.notifier,
		Observer: a.metrics,
		Logger:   a.logger,
	})

	queue.Start(ctx)
	defer queue.Stop()

	a.logger.Info("Arena started: %d worker(s), cycle budget %v", sc.Workers, sc.CycleBudget)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.metrics.Serve(gctx, a.cfg.MetricsAddr, a.logger) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return watchKillSwitch(gctx, a) })
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats := queue.Stats()
				active, reason, since := a.gate.KillSwitch().GetStatus()
				a.metrics.KillSwitch(active)
				if active {
					a.logger.Warn("Kill switch active since %s: %s", since.Format(time.RFC3339), reason)
				}
				a.logger.Debug("Queue: in_flight=%d succeeded=%d retried=%d failed=%d",
					queue.InFlight(), stats.Succeeded, stats.Retried, stats.Failed)
			}
		}
	})

	err = g.Wait()
	a.logger.Info("Shutting down")
	return err
}

// watchKillSwitch toggles the kill switch on SIGUSR1/SIGUSR2
func watchKillSwitch(ctx context.Context, a *app) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	ks := a.gate.KillSwitch()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			if sig == syscall.SIGUSR1 {
				ks.Activate("operator signal")
			} else {
				ks.Deactivate()
			}
			a.metrics.KillSwitch(ks.IsActive())
		}
	}
}

// shutdownTimeout bounds one-shot commands
const shutdownTimeout = 2 * time.Minute

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
