package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/loomhq/loom/server/config"
	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/datastore/mysql"
	"github.com/loomhq/loom/server/engine"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/retention"
	"github.com/loomhq/loom/server/search"
	"github.com/loomhq/loom/server/service/schedule"
	"github.com/loomhq/loom/server/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func createServeCmd(configManager config.Manager) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Launch the loom background-processing server",
		Long: `
Launch the loom background-processing server

The serve command runs the scheduled processes of the platform: the
retention manager and the background-task runner. Multiple instances may
run concurrently; database leases guarantee that each cycle executes on
one instance only.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configManager.LoadConfig()
			logger := initLogger(cfg.Logging)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ctx = ctxerr.NewContext(ctx, &logErrHandler{logger: logger})

			// each instance gets a unique lock owner identity per boot
			instanceID := "loom-" + uuid.New().String()

			ds, err := mysql.New(cfg.Mysql, mysql.WithLogger(logger))
			if err != nil {
				initFatal(err, "initializing datastore")
			}
			defer ds.Close()

			eng, err := engine.NewClient(engine.Options{
				BaseURL: cfg.Engine.Address,
				Token:   cfg.Engine.Token,
				Timeout: cfg.Engine.Timeout,
			})
			if err != nil {
				initFatal(err, "initializing engine client")
			}

			adapter := search.NewAdapter(eng)
			actor := loom.AutomationUser()

			var schedules []*schedule.Schedule

			if cfg.Retention.StartEnabled {
				executor := retention.NewExecutor(ds, adapter, eng, eng, actor,
					retention.WithLogger(kitlog.With(logger, "component", "retention")),
					retention.WithBatchSize(cfg.Retention.BatchSize),
				)
				s := schedule.New(ctx, cfg.Retention.LockKey, instanceID, cfg.Retention.Interval, ds,
					schedule.WithLogger(logger),
					schedule.WithLeaseDuration(cfg.Retention.LeaseDuration),
					// reload on every check so the knobs can be flipped at
					// runtime through env or the config file
					schedule.WithPreflightCheck(func(ctx context.Context) bool {
						return configManager.LoadConfig().Retention.Enabled
					}),
					schedule.WithConfigCheck(func(ctx context.Context) (time.Duration, error) {
						return configManager.LoadConfig().Retention.Interval, nil
					}),
					schedule.WithJob("retention_manager", func(ctx context.Context, lease *schedule.Lease) error {
						return ctxerr.Handle(ctx, executor.Run(ctx, lease))
					}),
				)
				s.Start()
				schedules = append(schedules, s)
			} else {
				level.Info(logger).Log("msg", "retention schedule not started on this instance")
			}

			if cfg.Tasks.StartEnabled {
				runner := worker.NewRunner(ds, adapter, eng, actor,
					kitlog.With(logger, "component", "tasks"),
				)
				s := schedule.New(ctx, cfg.Tasks.LockKey, instanceID, cfg.Tasks.Interval, ds,
					schedule.WithLogger(logger),
					schedule.WithPreflightCheck(func(ctx context.Context) bool {
						return configManager.LoadConfig().Tasks.Enabled
					}),
					schedule.WithConfigCheck(func(ctx context.Context) (time.Duration, error) {
						return configManager.LoadConfig().Tasks.Interval, nil
					}),
					schedule.WithJob("task_runner", func(ctx context.Context, lease *schedule.Lease) error {
						return ctxerr.Handle(ctx, runner.Run(ctx, lease))
					}),
				)
				s.Start()
				schedules = append(schedules, s)
			} else {
				level.Info(logger).Log("msg", "task-runner schedule not started on this instance")
			}

			if cfg.Metrics.Address != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					srv := &http.Server{
						Addr:              cfg.Metrics.Address,
						Handler:           mux,
						ReadHeaderTimeout: 5 * time.Second,
					}
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						level.Error(logger).Log("msg", "metrics server failed", "err", err)
					}
				}()
			}

			level.Info(logger).Log("msg", "server started", "instance_id", instanceID)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			level.Info(logger).Log("msg", "shutdown signal received")
			cancel()

			for _, s := range schedules {
				select {
				case <-s.Done():
				case <-time.After(30 * time.Second):
					level.Error(logger).Log("msg", "schedule did not stop in time", "schedule", s.Name())
				}
			}
		},
	}

	return serveCmd
}

func initLogger(cfg config.LoggingConfig) kitlog.Logger {
	var logger kitlog.Logger
	if cfg.JSON {
		logger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stderr))
	} else {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}
	if cfg.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
}

// logErrHandler is the ctxerr handler for this process: errors that bubbled
// to the top of a cron run are logged once, with their full annotation chain.
type logErrHandler struct {
	logger kitlog.Logger
}

func (h *logErrHandler) Store(ctx context.Context, err error) {
	level.Error(h.logger).Log("msg", "unhandled error", "err", err)
}
