package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"usdc-vault-custody/internal/api"
	"usdc-vault-custody/internal/metrics"
	"usdc-vault-custody/internal/middleware"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"
	"usdc-vault-custody/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var ErrBadCronSecret = errors.New("Unauthorized")

const (
	signatureHeader   = "x-alchemy-signature"
	maxWebhookBody    = 1 << 20
	defaultRunTimeout = 60 * time.Second
)

type notificationHandler interface {
	HandleNotification(ctx context.Context, body []byte, signature string) (*models.ReconcileResult, error)
}

type runner interface {
	Run(ctx context.Context) (*models.ProcessReport, error)
}

// Config wires the HTTP surface to the custody components.
type Config struct {
	Server     models.ServerConfig
	CronSecret string
	RunTimeout time.Duration
	Ledger     *api.LedgerService
	Reconciler notificationHandler
	Processor  runner
	Hub        *websocket.Hub
	Health     *metrics.HealthChecker
	Gatherer   prometheus.Gatherer
}

type Server struct {
	cfg        models.ServerConfig
	cronSecret string
	runTimeout time.Duration
	ledger     *api.LedgerService
	reconciler notificationHandler
	processor  runner
	hub        *websocket.Hub
	health     *metrics.HealthChecker
	gatherer   prometheus.Gatherer
}

func New(cfg Config) *Server {
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	health := cfg.Health
	if health == nil {
		health = metrics.NewHealthChecker()
	}
	hub := cfg.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	return &Server{
		cfg:        cfg.Server,
		cronSecret: cfg.CronSecret,
		runTimeout: runTimeout,
		ledger:     cfg.Ledger,
		reconciler: cfg.Reconciler,
		processor:  cfg.Processor,
		hub:        hub,
		health:     health,
		gatherer:   cfg.Gatherer,
	}
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(s.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/api/webhooks/alchemy", s.AlchemyWebhook)
	router.Get("/api/cron/process-withdrawals", s.ProcessWithdrawals)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg.JWTSecret))
		r.Get("/api/me", s.Me)
		r.Get("/api/deposits", s.ListDeposits)
		r.Post("/api/deposits", s.CreateDeposit)
		r.Get("/api/withdrawals", s.ListWithdrawals)
		r.Post("/api/withdrawals", s.RequestWithdrawal)
		r.Get("/api/positions", s.ListPositions)
		r.Get("/api/ledger", s.ListLedgerEntries)
	})

	router.Route("/api/strategy", func(r chi.Router) {
		r.Use(middleware.SharedSecret(s.cfg.StrategySecret))
		r.Post("/positions", s.OpenPosition)
		r.Post("/positions/{id}/close", s.ClosePosition)
		r.Post("/positions/{id}/price", s.UpdatePositionPrice)
	})

	router.Get("/ws/balances", s.WSBalances)

	router.Get("/healthz", s.health.LivenessHandler)
	router.Get("/readyz", s.health.ReadinessHandler)
	if s.cfg.MetricsEnabled && s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps ledger store failures onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, store.ErrProfileNotFound),
		errors.Is(err, store.ErrPositionNotFound),
		errors.Is(err, store.ErrDepositNotFound),
		errors.Is(err, store.ErrWithdrawalNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("Request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
