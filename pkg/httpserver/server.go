package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumera-labs/near-lockup/internal/ratelimit"
	"github.com/lumera-labs/near-lockup/pkg/inspect"
	"github.com/lumera-labs/near-lockup/pkg/lockup"
	"github.com/lumera-labs/near-lockup/pkg/rpc"
	"github.com/lumera-labs/near-lockup/pkg/types"
	"github.com/lumera-labs/near-lockup/schema"
)

// Inspector evaluates the lockup of one account at one block.
type Inspector interface {
	Inspect(ctx context.Context, accountID string, height *uint64) (*types.LockupReport, error)
}

type Config struct {
	Inspector  Inspector
	RatePerMin int
	Burst      int
	// TrustProxy keys rate limits by X-Forwarded-For instead of the remote address.
	TrustProxy bool
	// RequestTimeout bounds one inspection, including RPC retries.
	RequestTimeout time.Duration
	Logger         *slog.Logger
	GitTag         string
	GitCommit      string
}

type Server struct {
	cfg     Config
	router  chi.Router
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, router: chi.NewRouter(), limiter: ratelimit.New(cfg.RatePerMin, cfg.Burst).TrustProxy(cfg.TrustProxy), logger: logger}

	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/openapi.yaml", s.openAPI)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/lockups/{account}", s.handleLockup)
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (s *Server) handleLockup(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if !rpc.ValidAccountID(account) {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var height *uint64
	if v := r.URL.Query().Get("block_height"); v != "" {
		h, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid block_height")
			return
		}
		height = &h
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	report, err := s.cfg.Inspector.Inspect(ctx, account, height)
	if err != nil {
		switch {
		case errors.Is(err, inspect.ErrInvalidAccountID):
			s.writeError(w, http.StatusBadRequest, "invalid account id")
		case errors.Is(err, rpc.ErrAccountNotFound):
			s.writeError(w, http.StatusNotFound, "lockup account state not found")
		case errors.Is(err, lockup.ErrDecode):
			s.logger.Error("decode lockup state", "account_id", account, "error", err)
			s.writeError(w, http.StatusBadGateway, "could not decode account state")
		default:
			s.logger.Error("inspect lockup", "account_id", account, "error", err)
			s.writeError(w, http.StatusBadGateway, "upstream error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Block-Height", strconv.FormatUint(report.BlockHeight, 10))
	w.Header().Set("X-Block-Time", report.BlockTime.Format(time.RFC3339Nano))
	if height != nil {
		// a finalized block never changes
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func (s *Server) openAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(schema.OpenAPI)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(struct {
		Status    string `json:"status"`
		Time      string `json:"time"`
		GitTag    string `json:"git_tag,omitempty"`
		GitCommit string `json:"git_commit,omitempty"`
	}{"ok", time.Now().UTC().Format(time.RFC3339), s.cfg.GitTag, s.cfg.GitCommit})
}
