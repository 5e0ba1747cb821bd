package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lumikids/tutorflow/config"
	"github.com/lumikids/tutorflow/internal/metrics"
	"github.com/lumikids/tutorflow/internal/server"
	"github.com/lumikids/tutorflow/internal/telemetry"
	"github.com/lumikids/tutorflow/llm"
	"github.com/lumikids/tutorflow/llm/circuitbreaker"
	"github.com/lumikids/tutorflow/llm/openai"
	"github.com/lumikids/tutorflow/tokens"
	"github.com/lumikids/tutorflow/tutor"
	"github.com/lumikids/tutorflow/types"
)

// Server wires the pipeline behind the HTTP surface.
type Server struct {
	cfg        *config.Config
	loader     *config.Loader
	configPath string
	logger     *zap.Logger

	orch      *tutor.Orchestrator
	store     tutor.ConversationStore
	collector *metrics.Collector
	otel      *telemetry.Providers

	httpManager *server.Manager
	background  *errgroup.Group
	bgCancel    context.CancelFunc
}

// NewServer assembles the provider chain, conversation store and
// orchestrator from the loaded config.
func NewServer(cfg *config.Config, loader *config.Loader, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	return newServer(cfg, loader, configPath, logger, otelProviders, prometheus.DefaultRegisterer)
}

func newServer(cfg *config.Config, loader *config.Loader, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, reg prometheus.Registerer) (*Server, error) {
	collector := metrics.NewCollector("tutorflow", reg, logger)

	base := openai.New(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Organization: cfg.OpenAI.Organization,
		Timeout:      cfg.OpenAI.Timeout,
	}, logger)

	breaker := circuitbreaker.New(&circuitbreaker.Config{
		Threshold:    cfg.Resilience.BreakerThreshold,
		OpenDuration: cfg.Resilience.BreakerOpenDuration,
		OnStateChange: func(_, to circuitbreaker.State) {
			collector.RecordBreakerTransition(to.String())
		},
	}, logger)

	provider := llm.NewResilientProvider(base, breaker, &llm.RetryPolicy{
		MaxRetries: cfg.Resilience.MaxRetries,
		BaseDelay:  cfg.Resilience.BaseDelay,
		MaxBackoff: cfg.Resilience.MaxBackoff,
	}, logger)

	store, err := buildStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("build conversation store: %w", err)
	}

	var estimator tokens.Estimator
	if cfg.Pipeline.ExactTokens {
		exact, err := tokens.NewTiktokenEstimator(string(tokens.ModelGPT4oMini))
		if err != nil {
			logger.Warn("tokenizer unavailable, using heuristic estimator", zap.Error(err))
		} else {
			estimator = exact
		}
	}

	orch := tutor.New(provider, store, collector, tutor.Options{
		PrioritizeCost:     cfg.Pipeline.PrioritizeCost,
		HistoryTokenBudget: cfg.Pipeline.HistoryTokenBudget,
		HistoryLimit:       cfg.Pipeline.HistoryLimit,
		RateLimit:          rateLimitFromConfig(cfg.Pipeline),
		RateBurst:          cfg.Pipeline.RateBurst,
		Safety:             safetyFromConfig(cfg.Safety),
		Estimator:          estimator,
	}, logger)

	return &Server{
		cfg:        cfg,
		loader:     loader,
		configPath: configPath,
		logger:     logger,
		orch:       orch,
		store:      store,
		collector:  collector,
		otel:       otelProviders,
	}, nil
}

// Start brings up the HTTP listener, the config reload watcher when a file
// is in use, and the retention maintenance loop.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.background, ctx = errgroup.WithContext(ctx)

	if s.configPath != "" {
		watcher := config.NewWatcher(s.loader, s.configPath, 0, s.logger)
		watcher.OnReload(func(cfg *config.Config) {
			s.orch.UpdateSafety(safetyFromConfig(cfg.Safety))
			s.logger.Info("safety posture updated from config reload")
		})
		s.background.Go(func() error {
			watcher.Run(ctx)
			return nil
		})
	}

	s.background.Go(func() error {
		s.runMaintenance(ctx)
		return nil
	})

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// WaitForShutdown blocks until a signal or serve failure, then cleans up.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.background != nil {
		_ = s.background.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
}

// retentionWindow bounds how long usage counters and SQL-stored exchanges
// are kept.
const retentionWindow = 24 * time.Hour

// runMaintenance prunes stale usage-tracker sessions and, for the SQL
// store, expired conversation rows. Redis expiry is handled by key TTLs.
func (s *Server) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.orch.Usage().Cleanup(retentionWindow)
			if removed > 0 {
				s.logger.Info("expired usage sessions removed", zap.Int("sessions", removed))
			}
			if gs, ok := s.store.(*tutor.GormStore); ok {
				rows, err := gs.Cleanup(ctx, retentionWindow)
				if err != nil {
					s.logger.Warn("conversation retention cleanup failed", zap.Error(err))
				} else if rows > 0 {
					s.logger.Info("expired conversation rows removed", zap.Int64("rows", rows))
				}
			}
		}
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/respond", s.handleRespond)
	return mux
}

// respondRequest is the JSON body of POST /api/v1/respond.
type respondRequest struct {
	ChildID            string   `json:"child_id"`
	AgeGroup           string   `json:"age_group"`
	Subject            string   `json:"subject"`
	Topic              string   `json:"topic,omitempty"`
	LearningStyle      string   `json:"learning_style,omitempty"`
	AccessibilityNeeds []string `json:"accessibility_needs,omitempty"`
	Interests          []string `json:"interests,omitempty"`
	SessionID          string   `json:"session_id"`
	Message            string   `json:"message"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	age := types.AgeGroup(req.AgeGroup)
	if !age.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown age_group %q", req.AgeGroup))
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	needs := make([]types.AccessibilityNeed, 0, len(req.AccessibilityNeeds))
	for _, n := range req.AccessibilityNeeds {
		needs = append(needs, types.AccessibilityNeed(n))
	}

	convCtx := types.ConversationContext{
		ChildID:            req.ChildID,
		AgeGroup:           age,
		Subject:            req.Subject,
		Topic:              req.Topic,
		LearningStyle:      types.LearningStyle(req.LearningStyle),
		AccessibilityNeeds: needs,
		Interests:          req.Interests,
		SessionID:          req.SessionID,
	}

	resp, err := s.orch.GenerateResponse(r.Context(), convCtx, req.Message)
	if err != nil {
		status := http.StatusBadGateway
		if types.PipelineErrorCodeOf(err) == types.ErrCodeCircuitOpen {
			status = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "60")
		}
		s.logger.Error("respond failed", zap.Error(err))
		writeError(w, status, "upstream completion unavailable")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := s.orch.HealthCheck(ctx)
	if err != nil || !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"latency_ms": status.Latency.Milliseconds(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// buildStore selects the conversation store backend.
func buildStore(cfg config.StorageConfig, logger *zap.Logger) (tutor.ConversationStore, error) {
	switch cfg.Backend {
	case "memory":
		return tutor.NewMemoryStore(0), nil
	case "redis":
		store, err := tutor.NewRedisStore(tutor.RedisStoreConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			TTL:        cfg.Redis.TTL,
			SessionCap: cfg.Redis.SessionCap,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("redis conversation store connected", zap.String("addr", cfg.Redis.Addr))
		return store, nil
	case "database":
		store, err := tutor.OpenGormStore(cfg.Database.Driver, cfg.Database.DSN())
		if err != nil {
			return nil, err
		}
		logger.Info("database conversation store connected", zap.String("driver", cfg.Database.Driver))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func rateLimitFromConfig(cfg config.PipelineConfig) rate.Limit {
	if cfg.RateEvery <= 0 {
		return 0
	}
	return rate.Every(cfg.RateEvery)
}

func safetyFromConfig(cfg config.SafetyConfig) types.SafetyCheckConfig {
	return types.SafetyCheckConfig{
		StrictMode:                 cfg.StrictMode,
		AllowEducationalExceptions: cfg.AllowEducationalExceptions,
		ParentalControls: types.ParentalControls{
			BlockSensitiveTopics: cfg.BlockSensitiveTopics,
			BlockExternalLinks:   cfg.BlockExternalLinks,
		},
	}
}
