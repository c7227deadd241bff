package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/api"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/logging"
	"taskboard/internal/metrics"
	"taskboard/internal/service"
	"taskboard/pkg/realtime"
)

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer stores.Close(context.Background())

	if err := stores.EnsureSchema(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus := realtime.NewBus()
	publisher := realtime.Fanout{bus}
	if cfg.NATS.URL != "" {
		nc, err := connectNATS(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		publisher = append(publisher, realtime.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
	}

	tasks := service.NewTaskService(stores.Tasks, stores.Notifications, logger,
		service.WithPublisher(publisher),
		service.WithRecorder(m))
	notifications := service.NewNotificationService(stores.Notifications)

	handler := api.New(tasks, notifications, bus, logger,
		api.WithMetrics(m),
		api.WithCORS(api.CORS{
			Origins:     cfg.Server.CORSOrigins,
			Methods:     api.DefaultCORS().Methods,
			Credentials: cfg.Server.CORSCredentials,
		}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskboard listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("nats", cfg.NATS.URL != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func connectNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	log := logger.Named("realtime")
	nc, err := nats.Connect(cfg.URL,
		nats.Name("taskboard"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	log.Info("publishing events to nats",
		zap.String("url", nc.ConnectedUrl()),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return nc, nil
}
