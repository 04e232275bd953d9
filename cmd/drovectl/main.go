package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sulimcode/drove/internal/config"
	"github.com/sulimcode/drove/internal/db"
	"github.com/sulimcode/drove/internal/economy"
)

// drovectl talks straight to the database. It is the operator's tool; the
// public surface stays on the API.

func main() {
	root := &cobra.Command{
		Use:          "drovectl",
		Short:        "Drove operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(
		newAddCoinsCmd(),
		newSetPriceCmd(),
		newClearShieldCmd(),
		newStatsCmd(),
		newLeaderboardCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func withService(ctx context.Context, fn func(context.Context, *economy.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, db.Options{URL: cfg.DatabaseURL, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
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
	return fn(ctx, econ)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", arg)
	}
	return id, nil
}

func newAddCoinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-coins <account-id> <amount>",
		Short: "Adjust an account balance (negative allowed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return withService(cmd.Context(), func(ctx context.Context, econ *economy.Service) error {
				if err := econ.AdminAddCoins(ctx, id, amount); err != nil {
					return err
				}
				acct, err := econ.Account(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("account %d balance is now %d\n", id, acct.Balance)
				return nil
			})
		},
	}
}

func newSetPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-price <account-id> <price>",
		Short: "Override an account's price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			price, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || price <= 0 {
				return fmt.Errorf("invalid price %q", args[1])
			}
			return withService(cmd.Context(), func(ctx context.Context, econ *economy.Service) error {
				if err := econ.AdminSetPrice(ctx, id, price); err != nil {
					return err
				}
				fmt.Printf("account %d price set to %d\n", id, price)
				return nil
			})
		},
	}
}

func newClearShieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-shield <account-id>",
		Short: "Deactivate an account's shield early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, econ *economy.Service) error {
				if err := econ.DeactivateShield(ctx, id); err != nil {
					return err
				}
				fmt.Printf("account %d shield cleared\n", id)
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate market numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(ctx context.Context, econ *economy.Service) error {
				out, err := econ.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("accounts: %d (owned: %d)\n", out.TotalAccounts, out.OwnedAccounts)
				fmt.Printf("price avg/max: %d/%d\n", out.AveragePrice, out.MaxPrice)
				fmt.Printf("transactions today: %d\n", out.TransactionsToday)
				return nil
			})
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var category string
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(ctx context.Context, econ *economy.Service) error {
				rows, err := econ.Leaderboard(ctx, category, limit)
				if err != nil {
					return err
				}
				for _, row := range rows {
					name := row.Username
					if name == "" {
						name = strconv.FormatInt(row.AccountID, 10)
					}
					fmt.Printf("%2d. %-24s %d\n", row.Rank, name, row.Score)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "by", "value", "ranking: value, balance or prisoners")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows")
	return cmd
}
