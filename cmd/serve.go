package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/opsdesk-io/servicedesk/internal/api/http"
	"github.com/opsdesk-io/servicedesk/internal/api/http/handlers"
	"github.com/opsdesk-io/servicedesk/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background ingestion and SLA sweeps",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var sched *scheduler.Scheduler
	if rt.cfg.Scheduler.Enabled {
		sched = scheduler.New(rt.logger)
		sched.Register(scheduler.Job{
			Name:     "ingest",
			Interval: rt.cfg.Scheduler.IngestInterval(),
			Run: func(ctx context.Context, now time.Time) error {
				_, err := rt.ingestion.Run(ctx, now)
				return err
			},
		})
		sched.Register(scheduler.Job{
			Name:     "sla-sweep",
			Interval: rt.cfg.Scheduler.SweepInterval(),
			Run: func(ctx context.Context, now time.Time) error {
				_, err := rt.sla.Sweep(ctx, now)
				return err
			},
		})
		sched.Start(ctx)
		defer sched.Stop()
	}

	app := fiber.New(fiber.Config{AppName: rt.cfg.App.Name})
	httptransport.RegisterMiddlewares(app, rt.logger, rt.metrics, rt.cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, rt.pg, rt.redis)
	ticketsHandler := handlers.NewTicketsHandler(rt.lifecycle, rt.classifier)
	opsHandler := handlers.NewOpsHandler(handlers.RuntimeInfo{
		App:              rt.cfg.App.Name,
		DemoMode:         !rt.pg.Configured(),
		Source:           rt.ingestion.SourceName(),
		SmtpConfigured:   rt.cfg.SMTP.Enabled(),
		KafkaEnabled:     rt.cfg.Kafka.Enabled(),
		SchedulerEnabled: rt.cfg.Scheduler.Enabled,
	}, rt.ingestion, rt.sla, rt.teams, sched, rt.metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  healthHandler,
		Tickets: ticketsHandler,
		Ops:     opsHandler,
	})

	go func() {
		if err := app.Listen(rt.cfg.App.Addr()); err != nil {
			rt.logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(rt.logger)

	return app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
