package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nftlend/config"
	"nftlend/core/events"
	"nftlend/integrations/ownerquery"
	"nftlend/native/loan"
	"nftlend/observability/logging"
	"nftlend/observability/metrics"
	"nftlend/rpc"
	stateloan "nftlend/state/loan"
	"nftlend/storage"
)

// logEmitter mirrors engine events onto the structured log so operators can
// follow lifecycle activity without a separate event bus.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	attrs := make([]any, 0, len(evt.Attributes)*2)
	for key, value := range evt.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.log.Info(evt.Type, attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LOAND_ENV"))
	logger := logging.Setup("loand", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	genesis, err := cfg.Genesis()
	if err != nil {
		logger.Error("Failed to parse genesis time", slog.Any("error", err))
		os.Exit(1)
	}
	interval := time.Duration(cfg.BlockIntervalSeconds) * time.Second

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "loan"))
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := stateloan.NewStore(db)
	if err := store.EnsureContractConfig(&loan.ContractConfig{
		Name:           cfg.ContractName,
		Owner:          cfg.OwnerAddress,
		FeeDistributor: cfg.FeeDistributor,
		FeeRateBps:     cfg.FeeRateBps,
	}); err != nil {
		logger.Error("Failed to seed contract config", slog.Any("error", err))
		os.Exit(1)
	}

	engine := loan.NewEngine(cfg.CustodyAddress)
	engine.SetState(store)
	engine.SetEmitter(&logEmitter{log: logger})
	engine.SetHeightFunc(func() uint64 {
		elapsed := time.Since(genesis)
		if elapsed <= 0 {
			return 0
		}
		return uint64(elapsed / interval)
	})
	if url := strings.TrimSpace(cfg.OwnerOracleURL); url != "" {
		engine.SetOracle(ownerquery.New(url))
	}

	server := rpc.NewServer(engine, loan.NewQuerier(store), metrics.Loan(), logger)
	server.SetAdminJWTSecret(cfg.AdminJWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("loand listening", slog.String("address", cfg.ListenAddress), slog.String("env", env))
	if err := server.Serve(ctx, cfg.ListenAddress); err != nil && ctx.Err() == nil {
		logger.Error("HTTP server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("loand stopped")
}
