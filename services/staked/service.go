package staked

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stakeledger/config"
	"stakeledger/core/state"
	"stakeledger/native/staking"
	"stakeledger/observability/logging"
	telemetry "stakeledger/observability/otel"
	"stakeledger/storage"
)

const (
	serviceName     = "staked"
	shutdownTimeout = 10 * time.Second
)

// Version is stamped at build time.
var Version = "dev"

// Run boots the daemon described by the config at configPath and blocks
// until ctx is cancelled.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, logCloser := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       config.ResolvePath(configPath, cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	dataDir := config.ResolvePath(configPath, cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := state.EnsureStateVersion(db, cfg.AllowMigrate); err != nil {
		return err
	}

	mgr := state.NewManager(db)
	height, err := StoredHeight(mgr)
	if err != nil {
		return fmt.Errorf("read stored tick: %w", err)
	}
	ticker := NewClockTicker(height, cfg.TickInterval)

	indexerCfg := cfg.Indexer
	if indexerCfg.Driver != config.IndexerDriverPostgres {
		indexerCfg.DSN = resolveSQLitePath(dataDir, indexerCfg.DSN)
	}
	indexer, err := OpenIndexer(indexerCfg, logger)
	if err != nil {
		return err
	}
	defer indexer.Close()
	logger.Info("event indexer opened", "driver", indexerCfg.Driver, logging.MaskField("dsn", indexerCfg.DSN))

	hub := NewHub()
	processor := NewProcessor(mgr, ticker, logger, hub, indexer)
	processor.SetPauses(cfg.Pauses)
	if cfg.Pauses.IsPaused(staking.ModuleName()) {
		logger.Warn("staking halted by configuration; user operations will be rejected")
	}
	if err := bootstrap(ctx, processor, config.ResolvePath(configPath, cfg.GenesisFile), logger); err != nil {
		return err
	}

	secret := cfg.ResolveJWTSecret()
	if secret == "" {
		logger.Warn("no JWT secret configured; mutating routes will reject every request")
	} else {
		logger.Info("bearer auth enabled", "issuer", cfg.Auth.Issuer, logging.MaskField("jwtSecret", secret))
	}
	server := NewServer(processor, indexer, hub,
		NewAuthenticator(secret, cfg.Auth.Issuer),
		NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).TrustProxyHeaders(cfg.RateLimit.TrustProxyHeaders),
		logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go ticker.Run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("staked listening", "address", cfg.ListenAddress, "tick", ticker.Height(), "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down", "tick", ticker.Height())
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	return httpServer.Shutdown(sctx)
}

// bootstrap applies genesis on first start. Later starts keep the stored
// ledger and ignore the genesis file.
func bootstrap(ctx context.Context, processor *Processor, genesisPath string, logger *slog.Logger) error {
	if processor.IsInitialized() {
		return nil
	}
	g, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if err := processor.ApplyGenesis(ctx, g); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied",
		"owner", g.Owner.String(),
		"operator", g.Operator.String(),
		"pools", len(g.Pools),
		"module", processor.ModuleAddress().String())
	return nil
}

func resolveSQLitePath(dataDir, dsn string) string {
	if dsn == "" || dsn == ":memory:" || filepath.IsAbs(dsn) || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return filepath.Join(dataDir, dsn)
}
