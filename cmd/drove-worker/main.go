package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sulimcode/drove/internal/config"
	"github.com/sulimcode/drove/internal/db"
	"github.com/sulimcode/drove/internal/economy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	// The sweep runs one tx per owner; a small pool is plenty.
	pool, err := db.Connect(ctx, db.Options{URL: cfg.DatabaseURL, MaxConns: 4, MinConns: 1})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	econ := economy.NewService(pool, economy.Rules{
		StartingBalance:   cfg.StartingBalance,
		StartingPrice:     cfg.StartingPrice,
		PriceFloor:        cfg.PriceFloor,
		PriceGrowthFactor: cfg.PriceGrowthFactor,
		TransferFeeRate:   cfg.TransferFeeRate,
		ShieldDuration:    cfg.ShieldDuration,
		ShieldCostRate:    cfg.ShieldCostRate,
		IncomeMin:         cfg.IncomeMin,
		IncomeMax:         cfg.IncomeMax,
	}, logger, nil)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("DROVE_WORKER_RUN_ONCE")), "true")
	if runOnce {
		report, err := econ.RunIncomeTick(ctx)
		if err != nil {
			logger.Error("income tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed",
			"owners", report.Owners, "failed", report.Failed, "credited", report.Credited)
		return
	}

	ticker := time.NewTicker(cfg.IncomeInterval)
	defer ticker.Stop()

	logger.Info("worker started", "income_every", cfg.IncomeInterval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			report, err := econ.RunIncomeTick(ctx)
			if err != nil {
				logger.Error("income tick failed", "err", err)
				continue
			}
			logger.Info("income tick complete",
				"owners", report.Owners, "failed", report.Failed, "credited", report.Credited)
		}
	}
}
