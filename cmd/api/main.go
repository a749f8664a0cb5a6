package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/clinicdesk/scheduling-api/config"
	"github.com/clinicdesk/scheduling-api/internal/handler"
	appointmentHandler "github.com/clinicdesk/scheduling-api/internal/handler/appointment"
	scheduleHandler "github.com/clinicdesk/scheduling-api/internal/handler/schedule"
	"github.com/clinicdesk/scheduling-api/internal/middleware"
	"github.com/clinicdesk/scheduling-api/internal/repository/postgres"
	"github.com/clinicdesk/scheduling-api/internal/router"
	appointmentService "github.com/clinicdesk/scheduling-api/internal/service/appointment"
	scheduleService "github.com/clinicdesk/scheduling-api/internal/service/schedule"
	"github.com/clinicdesk/scheduling-api/pkg/clock"
	"github.com/clinicdesk/scheduling-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	loc, err := cfg.Clinic.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve clinic timezone")
	}

	if err := handler.RegisterCustomValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register request validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	appointmentRepo := postgres.NewAppointmentRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	m := metrics.New("scheduling_api")
	m.Register(prometheus.DefaultRegisterer)

	scheduleSvc := scheduleService.NewService(scheduleRepo, clock.Real(), loc)
	appointmentSvc := appointmentService.NewService(appointmentRepo, outboxRepo, scheduleSvc, clock.Real(), m)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	staffOnly := authMiddleware.RequireRole("staff", "admin")

	h := handler.NewHandler(db)
	scheduleH := scheduleHandler.NewHandler(scheduleSvc, staffOnly)
	appointmentH := appointmentHandler.NewHandler(appointmentSvc, staffOnly)

	r := router.NewRouter(
		authMiddleware,
		scheduleH,
		appointmentH,
		h,
		router.RouterConfig{
			RateLimit:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:     cfg.RateLimit.Burst,
			CORSConfig:    corsConfig(cfg),
			MetricsPrefix: "scheduling_api",
		},
	)
	r.Setup()
	r.Register(prometheus.DefaultRegisterer)

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Str("timezone", cfg.Clinic.Timezone).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Security.AllowedOrigins
	}
	return corsCfg
}
