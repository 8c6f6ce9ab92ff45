package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/auth"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/handlers"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/middleware"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/config"
	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/repository"
)

// Server exposes the loaded metrics and a manual run trigger over HTTP.
type Server struct {
	config     *config.Config
	httpServer *http.Server
	router     *mux.Router
	log        zerolog.Logger

	healthHandler   *handlers.HealthHandler
	metricsHandler  *handlers.MetricsHandler
	pipelineHandler *handlers.PipelineHandler
}

func NewServer(
	cfg *config.Config,
	repo repository.MetricsRepository,
	runner handlers.PipelineRunner,
	log zerolog.Logger,
) *Server {
	s := &Server{
		config: cfg,
		log:    log.With().Str("component", "api").Logger(),
	}

	s.healthHandler = handlers.NewHealthHandler(cfg.Source.Mode)
	s.metricsHandler = handlers.NewMetricsHandler(repo, s.log)
	s.pipelineHandler = handlers.NewPipelineHandler(runner, s.log)

	s.setupRouter()

	return s
}

func (s *Server) setupRouter() {
	r := mux.NewRouter()

	r.Use(middleware.Logging(s.log))
	r.Use(middleware.Recovery(s.log))
	r.Use(middleware.CORS(s.config.API.AllowedOrigins))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthHandler.Health).Methods("GET")
	api.HandleFunc("/ping", s.healthHandler.Ping).Methods("GET")

	api.HandleFunc("/metrics/daily", s.metricsHandler.ListDaily).Methods("GET")
	api.HandleFunc("/metrics/daily/{date}", s.metricsHandler.GetDaily).Methods("GET")
	api.HandleFunc("/metrics/channels", s.metricsHandler.ListChannels).Methods("GET")

	trigger := api.PathPrefix("/pipeline").Subrouter()
	trigger.Use(middleware.NewRateLimiter(s.config.API.TriggerRateLimit, s.config.API.TrustedProxies).Middleware)
	if s.config.API.TriggerAuthEnabled() {
		jwtManager := auth.NewJWTManager(s.config.API.JWTSecret, 0)
		trigger.Use(middleware.JWTAuth(jwtManager, s.log))
	} else {
		s.log.Warn().Msg("api.jwt_secret not set, pipeline trigger is unauthenticated")
	}
	trigger.HandleFunc("/run", s.pipelineHandler.Run).Methods("POST")

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.Source.Timeout()*3 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("api server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.log.Info().Msg("shutting down api server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info().Msg("api server stopped")
	return nil
}

// Router is exposed for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
