package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	_ "water_timer/docs"
	"water_timer/internal/config"
	"water_timer/internal/handlers"
	"water_timer/internal/logger"
	"water_timer/internal/metrics"
	"water_timer/internal/notify"
	"water_timer/internal/repository"
	"water_timer/internal/repository/db"
	"water_timer/internal/server"
	"water_timer/internal/service"
	"water_timer/internal/timesync"
	"water_timer/internal/valve"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	eventQueueSize  = 256
	shutdownTimeout = 10 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the controller and the HTTP API",
		Long:  `water_timer serve [--config=<file>]`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Get(cfg.Log.Level, logger.WithFormat(cfg.Log.Format))

	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Errorw("failed to init sqlite", "err", err)
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	kv, err := repository.OpenSettings(cfg.Store.Driver, cfg.Store.Path, sqlDB)
	if err != nil {
		log.Errorw("config_store_open_failed", "driver", cfg.Store.Driver, "err", err)
		return err
	}
	repos := repository.NewRepository(sqlDB, kv)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher, closeSinks := newDispatcher(ctx, cfg, repos, m, log)
	defer closeSinks()
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		dispatcher.Run(ctx)
	}()

	pin := valve.NewMemoryPin()
	vlog := log.Named("valve")
	pin.OnEdge(func(e valve.Edge) { vlog.Debugw("gpio_edge", "valve", cfg.Valve.Name, "high", e.High) })
	act := valve.NewActuator(pin, vlog)

	clock := timesync.NewSyncedClock(nil)
	schedOpts := []service.SchedulerOption{service.WithEvents(dispatcher), service.WithMetrics(m)}
	var (
		reconciler *timesync.Reconciler
		syncState  service.SyncState
	)
	if cfg.TimeSync.Enabled {
		tlog := log.Named("timesync")
		client, err := timesync.NewTimeAPIClient(timesync.TimeAPIConfig{
			BaseURL:      cfg.TimeSync.BaseURL,
			TimeZone:     cfg.TimeSync.TimeZone,
			Timeout:      cfg.TimeSync.Timeout,
			Retries:      cfg.TimeSync.Retries,
			RatePerSec:   cfg.TimeSync.RatePerSec,
			BreakerFails: cfg.TimeSync.BreakerFails,
			BreakerOpen:  cfg.TimeSync.BreakerOpen,
		}, tlog, m)
		if err != nil {
			return err
		}
		reconciler = timesync.NewReconciler(client, clock, cfg.TimeSync.Resync, cfg.TimeSync.Timeout, tlog)
		reconciler.OnSync(service.TimeSyncRecorder(dispatcher, m))
		syncState = clock
		if cfg.CatchUp.Strategy == config.CatchUpRemote {
			schedOpts = append(schedOpts, service.WithOracle(client), service.WithPreSync(reconciler.Sync))
		}
	}

	sched := service.NewScheduler(repos.Schedule, act, clock, service.SchedulerConfig{
		DefaultIntervalDays:  cfg.Schedule.DefaultIntervalDays,
		DefaultIntervalHours: cfg.Schedule.DefaultIntervalHours,
		DefaultDurationMS:    cfg.Schedule.DefaultDurationMS,
		Strategy:             cfg.CatchUp.Strategy,
		MaxRemoteSteps:       cfg.CatchUp.MaxRemoteSteps,
		MaxFailedCycles:      cfg.CatchUp.MaxFailedCycles,
		SyncBeforeCatchUp:    cfg.TimeSync.BeforeCatchUp,
	}, log.Named("scheduler"), schedOpts...)
	act.SetListener(service.NewRunObserver(dispatcher, m, sched.Nudge))

	// Sync first so a seeded next trigger uses the corrected clock.
	if reconciler != nil {
		if err := reconciler.Start(ctx); err != nil {
			return err
		}
		defer reconciler.Stop()
	}
	if _, err := sched.Initialize(ctx); err != nil {
		log.Errorw("schedule_load_failed", "err", err)
		return err
	}

	monitor := service.NewStatusMonitor(sched, act, syncState, clock, m)
	go monitor.Run(ctx, cfg.Monitor.Cadence)

	services := service.NewService(repos, sched, monitor, service.AuthConfig{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, log.Named("http"),
		handlers.WithAuth(cfg.Auth.Enabled),
		handlers.WithMetrics(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		handlers.WithLogLevel(log.LevelHandler()),
	)

	srv := server.New(server.Timeouts{
		ReadHeader: cfg.HTTP.ReadHeaderTimeout,
		Write:      cfg.HTTP.WriteTimeout,
		Idle:       cfg.HTTP.IdleTimeout,
	})
	httpErr := make(chan error, 1)
	go func() {
		if err := srv.Run(cfg.Port, apiHandler.InitRoutes()); err != nil {
			log.Errorw("error starting server", "err", err)
			httpErr <- err
			stop()
		}
	}()
	log.Infow("water_timer_started", "port", cfg.Port, "store", cfg.Store.Driver, "catch_up", cfg.CatchUp.Strategy)

	runErr := service.NewController(sched, act.Faults(), log.Named("controller")).Run(ctx, cfg.Schedule.Tick)
	stop()

	log.Infow("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	<-notifyDone

	if runErr != nil {
		log.Errorw("fatal_valve_fault", "err", runErr)
		return fmt.Errorf("controller stopped: %w", runErr)
	}
	select {
	case err := <-httpErr:
		return err
	default:
	}
	return nil
}

// newDispatcher builds the event fan-out. The event log sink is always on;
// MQTT and InfluxDB are added when enabled. A broker that cannot be reached
// at boot is logged and skipped.
func newDispatcher(ctx context.Context, cfg *config.Config, repos *repository.Repository, m *metrics.Metrics, log *logger.Logger) (*notify.Dispatcher, func()) {
	nlog := log.Named("notify")
	d := notify.NewDispatcher(eventQueueSize, nlog, m, notify.NewEventLogSink(repos.EventRepo))

	var closers []func()
	if cfg.MQTT.Enabled {
		pub, err := notify.DialMQTT(ctx, notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, nlog)
		switch {
		case err == nil:
			d.AddSink(pub)
			closers = append(closers, pub.Close)
		case errors.Is(err, context.Canceled):
		default:
			nlog.Warnw("mqtt_sink_disabled", "broker", cfg.MQTT.Broker, "err", err)
		}
	}
	if cfg.Influx.Enabled {
		w := notify.NewInfluxWriter(notify.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, cfg.Valve.Name)
		d.AddSink(w)
		closers = append(closers, w.Close)
	}
	return d, func() {
		for _, c := range closers {
			c()
		}
	}
}
