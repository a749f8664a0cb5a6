package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/clinicdesk/scheduling-api/config"
	"github.com/clinicdesk/scheduling-api/internal/repository/postgres"
	"github.com/clinicdesk/scheduling-api/pkg/logger"
	"github.com/clinicdesk/scheduling-api/pkg/messaging/redis"
	"github.com/clinicdesk/scheduling-api/pkg/metrics"
	"github.com/clinicdesk/scheduling-api/pkg/worker"
)

// workerEnv holds the worker's own knobs, configured through the environment
// rather than the shared config file.
type workerEnv struct {
	HealthPort int `envconfig:"HEALTH_PORT" default:"8081"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var env workerEnv
	if err := envconfig.Process("worker", &env); err != nil {
		log.Fatal().Err(err).Msg("Failed to read worker environment")
	}

	l := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger)
	if err != nil {
		l.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.New("outbox_processor")
	m.Register(prometheus.DefaultRegisterer)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		l,
		m,
	)

	setupHealthCheck(l, env.HealthPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)
}

func setupHealthCheck(l *logger.Logger, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			l.Fatal(err, "Health check server failed")
		}
	}()
}
