package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sulimcode/drove/internal/api"
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
	pool, err := db.Connect(ctx, db.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
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

	server := api.New(cfg, logger, econ)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("drove api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
