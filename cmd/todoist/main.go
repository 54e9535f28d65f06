package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todoist/internal/domain/errors"
	"todoist/internal/server"
	"todoist/internal/taskstore"
	db "todoist/repository/db"
	inmemory "todoist/repository/inmemory"
	"todoist/repository/sqlite"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	shutdownTimeout = 30 * time.Second
)

// storage is what every backend provides: users for the auth handlers and
// task rows for the task store.
type storage interface {
	server.UserRepository
	taskstore.Repository
	io.Closer
}

func main() {
	cfg, err := server.ReadConfig(os.Args[1:], logrus.NewEntry(logrus.StandardLogger()))
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	log := setupLogger(cfg.Env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("service stopped with error")
		os.Exit(1)
	}
	log.Info("service stopped")
}

func setupLogger(env string, out io.Writer) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)

	switch env {
	case envLocal:
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
	case envDev:
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case envProd:
		log.SetLevel(logrus.WarnLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	}

	return log.WithField("env", env)
}

func openStorage(ctx context.Context, cfg *server.Config, log *logrus.Entry) (storage, error) {
	switch cfg.Driver {
	case server.DriverPostgres:
		if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("migrations applied")
		pg, err := db.NewStorage(ctx, cfg.DBStr, log)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case server.DriverSQLite:
		lite, err := sqlite.NewStorage(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return lite, nil
	case server.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		return inmemory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownDriver, cfg.Driver)
	}
}

// newTaskService wraps the task store with logging and metrics.
func newTaskService(repo taskstore.Repository, log *logrus.Entry, reg prometheus.Registerer) taskstore.Service {
	var svc taskstore.Service = taskstore.New(repo)
	svc = taskstore.LoggingMiddleware(log.WithField("component", "taskstore"))(svc)
	svc = taskstore.InstrumentingMiddleware(taskstore.NewMetrics(reg))(svc)
	return svc
}

func run(ctx context.Context, cfg *server.Config, log *logrus.Entry) error {
	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	log.WithFields(logrus.Fields{
		"driver": cfg.Driver,
		"addr":   cfg.ListenAddr(),
	}).Info("starting todoist service")

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("failed to close storage")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	api := server.NewTaskAPI(
		store,
		newTaskService(store, log, reg),
		cfg,
		server.WithLogger(log.WithField("component", "http")),
		server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	if api == nil {
		return errors.ErrInternalServer
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, starting graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return <-serverErr
	case err := <-serverErr:
		return err
	}
}
