package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/arbscan/api"
	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/dex/uniswap"
	"github.com/michaelpento.lv/arbscan/gas"
	"github.com/michaelpento.lv/arbscan/scanner"
	"github.com/michaelpento.lv/arbscan/strategies/arbitrage"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
	"github.com/michaelpento.lv/arbscan/utils/monitor"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 5 * time.Second
)

// Bot wires the scanner, its chain clients and the control API
type Bot struct {
	cfg     *config.Config
	quoters []*uniswap.Quoter
	scanner *scanner.Scanner
	hub     *api.Hub
	health  *monitor.HealthMonitor
	server  *api.Server
	logger  *zap.Logger
}

// New dials every configured chain and builds the component graph. ctx bounds
// the lifetime of scan sessions started through the API.
func New(ctx context.Context, cfg *config.Config, secure *config.SecureConfig, logger *zap.Logger) (*Bot, error) {
	metrics.Initialize(logger)
	m := metrics.New(metrics.DefaultNamespace)

	b := &Bot{cfg: cfg, logger: logger}

	quoters := make(map[string]dex.Quoter, len(cfg.Chains))
	opts := uniswap.OptionsFromConfig(cfg, logger, m.Quote)
	for _, chain := range cfg.Chains {
		q, err := uniswap.Dial(ctx, chain, opts)
		if err != nil {
			b.closeQuoters()
			return nil, err
		}
		b.quoters = append(b.quoters, q)
		quoters[chain.ID] = q
		logger.Info("Chain configured",
			zap.String("chain", chain.ID),
			zap.Uint64("chain_id", chain.ChainID),
			zap.String("quoter", chain.Quoter.Hex()),
		)
	}

	estimator := gas.NewEstimator(cfg.GasUnits, logger)
	detector := arbitrage.NewDetector(cfg, estimator, m, logger)

	sc, err := scanner.New(cfg, quoters, detector, m, logger)
	if err != nil {
		b.closeQuoters()
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	b.scanner = sc

	// A chain is stale after missing five of its round-robin turns
	staleAfter := 5 * time.Duration(len(cfg.Chains)) * cfg.ScanInterval
	b.health = monitor.NewHealthMonitor(sc, m.Registry(), metrics.DefaultNamespace, healthInterval, staleAfter, logger)

	b.hub = api.NewHub(logger)
	sc.SetNotifier(b.hub)

	var wallet common.Address
	if secure != nil {
		wallet = secure.WalletAddress
	}
	b.server = api.NewServer(ctx, sc, api.Options{
		Config:  cfg.API,
		Wallet:  wallet,
		Metrics: m,
		Hub:     b.hub,
		Health:  b.health,
		Logger:  logger,
	})

	return b, nil
}

// Scanner returns the scanner driven by the API
func (b *Bot) Scanner() *scanner.Scanner {
	return b.scanner
}

// Run serves the API until ctx is done, then stops the scanner and shuts
// the server down. With autostart a scan session begins immediately.
func (b *Bot) Run(ctx context.Context, autostart bool) error {
	defer b.closeQuoters()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		b.health.Run(gctx)
		return nil
	})

	g.Go(b.server.Start)

	g.Go(func() error {
		<-gctx.Done()
		b.logger.Info("Shutting down gracefully...")
		b.scanner.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return b.server.Shutdown(shutdownCtx)
	})

	if autostart {
		if _, err := b.scanner.Start(ctx); err != nil {
			b.logger.Error("Failed to start scanner", zap.Error(err))
		}
	}

	return g.Wait()
}

func (b *Bot) closeQuoters() {
	for _, q := range b.quoters {
		q.Close()
	}
	b.quoters = nil
}
