package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/scanner"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
)

// DefaultBalanceTimeout bounds the wallet balance lookups of the status endpoint
const DefaultBalanceTimeout = 3 * time.Second

// Options configures the control API
type Options struct {
	Config         config.APIConfig
	BalanceTimeout time.Duration
	Metrics        *metrics.Metrics
	Hub            *Hub
	Logger         *zap.Logger

	// Health flags chains that stopped completing sweeps on /status. Nil
	// reports every chain as fresh.
	Health StaleReporter

	// Wallet is the address whose native balance is reported per chain.
	// The zero address disables balance lookups.
	Wallet common.Address
}

// StaleReporter lists chains that have not completed a sweep recently
type StaleReporter interface {
	StaleChains() []string
}

// Server is the HTTP control surface of the scanner
type Server struct {
	scanner *scanner.Scanner
	opts    Options
	router  *mux.Router
	http    *http.Server
	baseCtx context.Context
	logger  *zap.Logger
}

// NewServer registers every route. baseCtx outlives individual requests and
// bounds scan sessions started through POST /start.
func NewServer(baseCtx context.Context, sc *scanner.Scanner, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BalanceTimeout <= 0 {
		opts.BalanceTimeout = DefaultBalanceTimeout
	}

	s := &Server{
		scanner: sc,
		opts:    opts,
		router:  mux.NewRouter(),
		baseCtx: baseCtx,
		logger:  opts.Logger.With(zap.String("component", "api")),
	}

	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	s.router.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	if opts.Hub != nil {
		s.router.HandleFunc("/ws", opts.Hub.HandleWS).Methods(http.MethodGet)
	}

	s.router.Use(recoverer(s.logger), logging(s.logger))

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens for requests and blocks until the server is shut down
func (s *Server) Start() error {
	s.logger.Info("Control API listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Control API shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
