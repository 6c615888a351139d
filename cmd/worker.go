package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/services/fleet/config"
	"example.com/backstage/services/fleet/internal/service"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker that periodically marks devices offline
when they have not reported within liveness.offline_after.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Liveness.Interval <= 0 || cfg.Liveness.OfflineAfter <= 0 {
		return errors.New("liveness.interval and liveness.offline_after must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(cfg, "fleet-worker")
	if err != nil {
		return err
	}
	defer comps.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("interval", cfg.Liveness.Interval).Info("Starting liveness sweeper")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return errors.Wrap(err, "failed to create scheduler")
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Liveness.Interval),
			gocron.NewTask(func() {
				sweepOfflineDevices(ctx, comps.service, cfg.Liveness.OfflineAfter)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrap(err, "failed to schedule liveness sweep")
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Worker error")
		return err
	}

	log.Info("Worker shutting down gracefully")
	return nil
}

// sweepOfflineDevices runs one liveness pass bounded by the sweep interval
func sweepOfflineDevices(ctx context.Context, svc service.Service, offlineAfter time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := svc.MarkStaleDevicesOffline(ctx, offlineAfter)
	if err != nil {
		log.WithError(err).Error("Liveness sweep failed")
		return
	}
	log.WithField("devices", n).Debug("Liveness sweep completed")
}
