package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elid/devicesim/internal/config"
	"github.com/elid/devicesim/internal/db"
	"github.com/elid/devicesim/internal/devicesim/service"
	"github.com/elid/devicesim/internal/devicesim/sink"
	"github.com/elid/devicesim/internal/devicesim/store/sqlite"
	"github.com/elid/devicesim/internal/grpcapi"
	"github.com/elid/devicesim/internal/httpapi"
	"github.com/elid/devicesim/internal/influxdb"
	"github.com/elid/devicesim/internal/logging"
	"github.com/elid/devicesim/internal/metrics"
	"github.com/elid/devicesim/internal/mqtt"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Recover active devices and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootConfigPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB
	conn, err := db.Open(ctx, db.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return err
	}
	defer conn.Close()

	writer := db.NewWorker(conn)
	defer writer.Close()

	if cfg.Env == "dev" {
		n, err := db.SeedDev(ctx, conn, seedOptions(cfg))
		if err != nil {
			return errors.Wrap(err, "seeding dev devices")
		}
		logger.Info().Int("inserted", n).Msg("dev seed complete")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Stores and sink
	deviceStore := sqlite.NewDeviceStore(conn, writer)
	txStore := sqlite.NewTransactionStore(conn, writer)

	mirrors, closeMirrors := connectMirrors(cfg, logger, m)
	defer closeMirrors()
	fanout := sink.NewFanout(txStore, logger, m, mirrors...)

	// Services
	sup := service.NewSupervisor(fanout, service.SupervisorConfig{
		MinDelay:    cfg.Workers.MinDelay,
		MaxDelay:    cfg.Workers.MaxDelay,
		StopGrace:   cfg.Workers.StopGrace,
		SinkTimeout: cfg.Workers.SinkTimeout,
	}, logger, m)
	orch := service.NewOrchestrator(deviceStore, sup, logger, m)

	g, gctx := errgroup.WithContext(ctx)

	// Health is served from the start so probes see NOT_SERVING while
	// recovery runs.
	var health *grpcapi.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return errors.Wrapf(err, "listen grpc %s", cfg.GRPC.Addr)
		}
		health = grpcapi.NewServer(logger)
		g.Go(func() error {
			return errors.Wrap(health.Serve(lis), "grpc serve")
		})
	}

	// Recovery runs before any listener accepts toggles.
	if _, err := orch.Bootstrap(gctx); err != nil {
		orch.Shutdown()
		if health != nil {
			health.Stop(cfg.HTTP.ShutdownTimeout)
		}
		_ = g.Wait()
		return errors.Wrap(err, "recovering active devices")
	}
	if health != nil {
		health.SetServing(true)
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:       logger,
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Orchestrator: orch,
		Transactions: txStore,
		Gatherer:     reg,
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http serve")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		if health != nil {
			health.SetServing(false)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}

		orch.Shutdown()

		if health != nil {
			health.Stop(cfg.HTTP.ShutdownTimeout)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}

// connectMirrors dials the optional MQTT and InfluxDB mirrors. A mirror
// that cannot connect is logged and skipped.
func connectMirrors(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) ([]sink.Mirror, func()) {
	var (
		mirrors []sink.Mirror
		closers []func()
	)

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("mqtt mirror disabled")
		} else {
			mirrors = append(mirrors, sink.NewMQTTMirror(client, client.Topics().Transaction, client.QoS()))
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			logger.Warn().Err(err).Msg("influxdb mirror disabled")
		} else {
			client.SetOnError(func(err error) {
				m.MirrorFailed("influxdb")
				logger.Warn().Err(err).Msg("influxdb write failed")
			})
			mirrors = append(mirrors, sink.NewInfluxMirror(client))
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	return mirrors, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
