package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elid/devicesim/internal/devicesim/service"
	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// Orchestrator is the worker control surface the HTTP API drives.
type Orchestrator interface {
	Toggle(ctx context.Context, id string) (types.Device, error)
	OnDeviceActivated(ctx context.Context, id string) (types.Device, error)
	OnDeviceDeactivated(ctx context.Context, id string) (types.Device, error)
	SetStatus(ctx context.Context, id string, status types.DeviceStatus) (types.Device, error)
	IsDeviceRunning(id string) bool
	WorkersStatus() types.WorkersStatus
}

// TransactionReader serves the recent-transactions feed.
type TransactionReader interface {
	Recent(ctx context.Context, limit int) ([]types.Transaction, error)
}

type Dependencies struct {
	Logger       zerolog.Logger
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Orchestrator Orchestrator
	// Transactions backs GET /transactions/recent; nil leaves it unmounted.
	Transactions TransactionReader
	// Gatherer backs GET /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	orch       Orchestrator
	txs        TransactionReader
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger: d.Logger.With().Str("component", "http").Logger(),
		orch:   d.Orchestrator,
		txs:    d.Transactions,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/", s.handleHealth)
	r.Route("/devices", func(r chi.Router) {
		r.Get("/workers/status", s.handleWorkersStatus)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", s.handleToggle)
			r.Post("/activate", s.handleActivate)
			r.Post("/deactivate", s.handleDeactivate)
			r.Put("/status/{status}", s.handleSetStatus)
			r.Get("/worker", s.handleWorkerState)
		})
	})
	if d.Transactions != nil {
		r.Get("/transactions/recent", s.handleRecentTransactions)
	}
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       d.ReadTimeout,
		WriteTimeout:      d.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Serve(lis net.Listener) error {
	return s.httpServer.Serve(lis)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToggle flips the device between active and inactive.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, "toggle", err)
		return
	}
	respond(w, r, http.StatusOK, d, deviceToStruct)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.OnDeviceActivated(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, "activate", err)
		return
	}
	respond(w, r, http.StatusOK, d, deviceToStruct)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.OnDeviceDeactivated(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, "deactivate", err)
		return
	}
	respond(w, r, http.StatusOK, d, deviceToStruct)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := types.ParseDeviceStatus(chi.URLParam(r, "status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be active or inactive")
		return
	}
	d, err := s.orch.SetStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		s.writeServiceError(w, r, "set_status", err)
		return
	}
	respond(w, r, http.StatusOK, d, deviceToStruct)
}

func (s *Server) handleWorkerState(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	st := types.WorkerState{DeviceID: id, Running: s.orch.IsDeviceRunning(id)}
	respond(w, r, http.StatusOK, st, workerStateToStruct)
}

func (s *Server) handleWorkersStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.orch.WorkersStatus(), workersStatusToStruct)
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	txs, err := s.txs.Recent(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, "recent_transactions", err)
		return
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	respond(w, r, http.StatusOK, recentTransactions{Transactions: txs}, recentTransactionsToStruct)
}

type recentTransactions struct {
	Transactions []types.Transaction `json:"transactions"`
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "device not found")
	case errors.Is(err, service.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", "workers are still being recovered")
	case errors.Is(err, service.ErrSupervisorClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	case errors.Is(err, service.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, service.ErrUnknownDeviceType):
		writeError(w, http.StatusUnprocessableEntity, "unknown_device_type", err.Error())
	case errors.Is(err, service.ErrStatusNotPersisted):
		writeError(w, http.StatusInternalServerError, "status_not_persisted",
			"worker state changed but the device status could not be saved; retry the request")
	default:
		s.logger.Error().Err(err).
			Str("op", op).
			Str("request_id", requestID(r.Context())).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
