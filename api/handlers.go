package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/arbscan/gas"
	"github.com/michaelpento.lv/arbscan/scanner"
	"github.com/michaelpento.lv/arbscan/types"
)

// HealthResponse is served by GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Running  bool   `json:"running"`
	Port     int    `json:"port"`
	Identity string `json:"identity"`
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.scanner.Snapshot()
	s.markStale(state.Chains)
	s.fillBalances(r.Context(), state.Chains)
	writeJSON(w, http.StatusOK, state)
}

// POST /start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.scanner.Start(s.baseCtx)
	if errors.Is(err, scanner.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	if err != nil {
		s.logger.Error("Failed to start scanner", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Stop())
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Running:  s.scanner.Running(),
		Port:     s.opts.Config.Port,
		Identity: s.opts.Config.Identity,
	})
}

func (s *Server) markStale(chains []types.ChainStatus) {
	if s.opts.Health == nil {
		return
	}
	stale := make(map[string]bool)
	for _, id := range s.opts.Health.StaleChains() {
		stale[id] = true
	}
	for i := range chains {
		chains[i].Stale = stale[chains[i].ID]
	}
}

// fillBalances reads the wallet balance on every chain concurrently. A chain
// that fails or times out keeps an empty balance.
func (s *Server) fillBalances(ctx context.Context, chains []types.ChainStatus) {
	if s.opts.Wallet == (common.Address{}) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.BalanceTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := range chains {
		i := i
		quoter, ok := s.scanner.Quoter(chains[i].ID)
		if !ok {
			continue
		}
		g.Go(func() error {
			balance, err := quoter.BalanceAt(ctx, s.opts.Wallet)
			if err != nil {
				s.logger.Debug("Failed to read wallet balance",
					zap.String("chain", chains[i].ID),
					zap.Error(err),
				)
				return nil
			}
			chains[i].Balance = gas.Native(balance).String()
			return nil
		})
	}
	_ = g.Wait()
}

// writeJSON marshals v and writes it with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}
