package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/scanner"
	"github.com/michaelpento.lv/arbscan/strategies/arbitrage"
	"github.com/michaelpento.lv/arbscan/types"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
	"github.com/michaelpento.lv/arbscan/utils/testutils"
)

var testWallet = common.HexToAddress("0x00000000000000000000000000000000000000e4")

type fixture struct {
	server  *Server
	scanner *scanner.Scanner
	quoters map[string]*testutils.FakeQuoter
	hub     *Hub
}

func newFixture(t *testing.T, wallet common.Address) *fixture {
	cfg := testutils.TestConfig(t, "alpha", "beta")
	cfg.ScanInterval = time.Hour
	cfg.API = config.APIConfig{Port: 3999, Identity: "arbscan-test"}

	logger := zaptest.NewLogger(t)
	m := metrics.New("test_api")

	fakes := map[string]*testutils.FakeQuoter{}
	quoters := map[string]dex.Quoter{}
	for _, id := range []string{"alpha", "beta"} {
		q := testutils.NewFakeQuoter()
		fakes[id] = q
		quoters[id] = q
	}

	detector := arbitrage.NewDetector(cfg, nil, m, logger)
	sc, err := scanner.New(cfg, quoters, detector, m, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	// Client pumps outlive the test, so the hub logs nowhere
	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)
	sc.SetNotifier(hub)

	t.Cleanup(func() {
		sc.Stop()
		cancel()
	})

	server := NewServer(ctx, sc, Options{
		Config:  cfg.API,
		Wallet:  wallet,
		Metrics: m,
		Hub:     hub,
		Logger:  logger,
	})
	return &fixture{server: server, scanner: sc, quoters: fakes, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, common.Address{})

	rec := f.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, HealthResponse{Status: "ok", Running: false, Port: 3999, Identity: "arbscan-test"}, body)

	// Health never touches the chains
	for _, q := range f.quoters {
		assert.Empty(t, q.Calls())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, common.Address{})

	rec := f.do(t, http.MethodPost, "/start")
	require.Equal(t, http.StatusOK, rec.Code)

	var started scanner.StartResult
	decode(t, rec, &started)
	assert.True(t, started.Success)
	assert.True(t, started.IsRunning)
	assert.True(t, started.IsDryRun)
	assert.Equal(t, []string{"alpha", "beta"}, started.Config.Chains)
	assert.Equal(t, []uint32{500, 3000}, started.Config.FeeTiers)

	// Second start conflicts and leaves the session running
	rec = f.do(t, http.MethodPost, "/start")
	require.Equal(t, http.StatusConflict, rec.Code)

	var conflict map[string]interface{}
	decode(t, rec, &conflict)
	assert.Equal(t, false, conflict["success"])
	assert.Equal(t, true, conflict["isRunning"])
	assert.Equal(t, scanner.ErrAlreadyRunning.Error(), conflict["error"])
	assert.True(t, f.scanner.Running())

	rec = f.do(t, http.MethodGet, "/health")
	var health HealthResponse
	decode(t, rec, &health)
	assert.True(t, health.Running)

	for i := 0; i < 2; i++ {
		rec = f.do(t, http.MethodPost, "/stop")
		require.Equal(t, http.StatusOK, rec.Code)
		var stopped scanner.StopResult
		decode(t, rec, &stopped)
		assert.Equal(t, scanner.StopResult{Success: true, IsRunning: false}, stopped)
	}
	assert.False(t, f.scanner.Running())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, testWallet)

	f.quoters["alpha"].Balance = new(big.Int).Mul(big.NewInt(15), big.NewInt(1e17))
	f.quoters["beta"].BalanceErr = errors.New("connection refused")

	in := testutils.Units(t, "0.01", 18)
	mid := testutils.Units(t, "25", 6)
	alpha := f.quoters["alpha"]
	alpha.SetQuote(testutils.BaseToken, 500, in, mid)
	alpha.SetQuote(testutils.QuoteToken, 3000, mid, testutils.Units(t, "0.0105", 18))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/start").Code)
	require.Eventually(t, func() bool {
		return f.scanner.Snapshot().Statistics.SampleCount > 0
	}, 2*time.Second, 5*time.Millisecond)

	rec := f.do(t, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.ScannerState
	decode(t, rec, &state)
	assert.True(t, state.IsRunning)
	assert.True(t, state.IsDryRun)
	assert.NotNil(t, state.StartTime)
	assert.Equal(t, uint64(1), state.Statistics.TotalScans)
	assert.Equal(t, uint64(1), state.Statistics.ProfitableCount)
	assert.Equal(t, "alpha", state.Statistics.CurrentChain)

	require.Len(t, state.Opportunities, 1)
	assert.Equal(t, "500→3000", state.Opportunities[0].Route)
	assert.Equal(t, types.StatusProfitable, state.Opportunities[0].Status)
	assert.Equal(t, "0.01", state.Opportunities[0].AmountIn.String())

	require.Len(t, state.Chains, 2)
	assert.Equal(t, "alpha", state.Chains[0].ID)
	assert.Equal(t, "1.5", state.Chains[0].Balance)
	assert.Equal(t, 0.1, state.Chains[0].GasPriceGwei)
	assert.NotNil(t, state.Chains[0].LastSweep)
	assert.Empty(t, state.Chains[1].Balance)
	assert.Nil(t, state.Chains[1].LastSweep)
}

type staleChains []string

func (s staleChains) StaleChains() []string { return s }

func TestStatusFlagsStaleChains(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.server.opts.Health = staleChains{"beta"}

	rec := f.do(t, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.ScannerState
	decode(t, rec, &state)
	require.Len(t, state.Chains, 2)
	assert.False(t, state.Chains[0].Stale)
	assert.True(t, state.Chains[1].Stale)
	assert.Contains(t, rec.Body.String(), `"stale":true`)
}

func TestStatusWithoutWalletSkipsBalances(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.quoters["alpha"].Balance = big.NewInt(1e18)

	rec := f.do(t, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.ScannerState
	decode(t, rec, &state)
	assert.False(t, state.IsRunning)
	assert.Empty(t, state.Opportunities)
	for _, c := range state.Chains {
		assert.Empty(t, c.Balance)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, common.Address{})

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_api_running")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, common.Address{})

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/start").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodPost, "/status").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope").Code)
}

func TestRecovererReturns500(t *testing.T) {
	h := recoverer(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestServerStartShutdown(t *testing.T) {
	f := newFixture(t, common.Address{})
	f.server.http.Addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- f.server.Start() }()

	// Give ListenAndServe a moment before shutting down
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestEndToEndOverHTTP(t *testing.T) {
	f := newFixture(t, common.Address{})
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/start", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// The session outlives the request that started it
	time.Sleep(20 * time.Millisecond)
	assert.True(t, f.scanner.Running())
}
