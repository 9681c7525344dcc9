package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/genzilabs/monger-client/internal/config"
	"github.com/genzilabs/monger-client/internal/currency"
	"github.com/genzilabs/monger-client/internal/infra/api"
	"github.com/genzilabs/monger-client/internal/infra/credentials"
	"github.com/genzilabs/monger-client/internal/infra/localstore"
	"github.com/genzilabs/monger-client/internal/infra/netmon"
	"github.com/genzilabs/monger-client/internal/infra/observability"
	"github.com/genzilabs/monger-client/internal/infra/resilience"
	"github.com/genzilabs/monger-client/internal/service"
)

// monger runs the client core as a background sync agent: it restores the
// persisted session, watches connectivity, and keeps every known book
// reconciled against the server until interrupted.
func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("api_url", cfg.APIBaseURL),
		zap.String("data_dir", cfg.DataDir),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "monger-client")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Local store (sqlite, degrading to memory) ---
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		logger.Warn("data dir unavailable", zap.Error(err))
	}
	var repo localstore.Repository
	sqlite, err := localstore.Open(cfg.DatabasePath())
	if err != nil {
		logger.Warn("sqlite unavailable, running memory-only; nothing will survive a restart",
			zap.String("path", cfg.DatabasePath()),
			zap.Error(err),
		)
		repo = localstore.NewMemory()
	} else {
		repo = sqlite
	}
	defer repo.Close()

	// --- Credentials ---
	creds, err := credentials.Open(cfg.CredentialsPath())
	if err != nil {
		logger.Fatal("failed to open credential store", zap.Error(err))
	}

	// --- Connectivity ---
	probeCtx, probeCancel := context.WithCancel(context.Background())
	defer probeCancel()
	net := netmon.New(netmon.Online)
	net.StartProbe(probeCtx, &http.Client{Timeout: 5 * time.Second}, cfg.APIBaseURL+cfg.ProbePath, cfg.ProbeInterval)

	// --- HTTP gateway ---
	client := api.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.APIBaseURL,
		creds,
		resilience.NewCircuitBreaker("monger-api"),
		cfg.MaxConcurrency,
		logger,
		metrics,
	)

	// --- Services ---
	syncSvc := service.NewSyncService(repo, client, net, cfg.SyncInterval, logger, metrics)
	defer syncSvc.Close()
	authSvc := service.NewAuthService(client, creds, repo, syncSvc, logger, metrics)

	if !authSvc.HasSession() {
		logger.Warn("no persisted session; sign in with a client before running the agent")
	} else {
		if user, err := authSvc.Restore(); err == nil && user != nil {
			logger.Info("session restored", zap.String("user_id", user.ID))
		}
		books, err := repo.Books()
		if err != nil {
			logger.Warn("listing cached books failed", zap.Error(err))
		}
		for _, b := range books {
			syncSvc.StartAutoSync(b.ID)

			pockets, _ := repo.PocketsByBook(b.ID)
			var total int64
			for _, p := range pockets {
				total += p.BalanceCents
			}
			logger.Info("auto-sync started",
				zap.String("book_id", b.ID),
				zap.String("book", b.Name),
				zap.String("cached_balance", currency.Format(total, b.BaseCurrency)),
			)
		}
	}

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	syncSvc.StopAllAutoSync()
	if n, err := syncSvc.PendingCount(); err == nil && n > 0 {
		logger.Info("pending changes remain queued for next start", zap.Int("count", n))
	}
}
