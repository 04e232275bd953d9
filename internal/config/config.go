package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the binaries need. All values come from the
// environment; economy knobs default to the original game rules.
type Config struct {
	Addr         string `env:"DROVE_API_ADDR" envDefault:":8080"`
	DatabaseURL  string `env:"DATABASE_URL,notEmpty"`
	ServiceToken string `env:"DROVE_SERVICE_TOKEN"`
	DBMaxConns   int32  `env:"DROVE_DB_MAX_CONNS" envDefault:"16"`
	DBMinConns   int32  `env:"DROVE_DB_MIN_CONNS" envDefault:"1"`

	StartingBalance   int64         `env:"DROVE_STARTING_BALANCE" envDefault:"300"`
	StartingPrice     int64         `env:"DROVE_STARTING_PRICE" envDefault:"100"`
	PriceFloor        int64         `env:"DROVE_PRICE_FLOOR" envDefault:"50"`
	PriceGrowthFactor float64       `env:"DROVE_PRICE_GROWTH_FACTOR" envDefault:"1.3"`
	TransferFeeRate   float64       `env:"DROVE_TRANSFER_FEE_RATE" envDefault:"0"`
	ShieldDuration    time.Duration `env:"DROVE_SHIELD_DURATION" envDefault:"24h"`
	ShieldCostRate    float64       `env:"DROVE_SHIELD_COST_RATE" envDefault:"0.35"`
	IncomeMin         int64         `env:"DROVE_INCOME_MIN" envDefault:"1"`
	IncomeMax         int64         `env:"DROVE_INCOME_MAX" envDefault:"3"`
	IncomeInterval    time.Duration `env:"DROVE_INCOME_INTERVAL" envDefault:"1h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("db pool sizing [%d,%d] is invalid", c.DBMinConns, c.DBMaxConns)
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("starting balance must be >= 0, got %d", c.StartingBalance)
	}
	if c.StartingPrice <= 0 {
		return fmt.Errorf("starting price must be > 0, got %d", c.StartingPrice)
	}
	if c.PriceFloor <= 0 || c.PriceFloor > c.StartingPrice {
		return fmt.Errorf("price floor must be in (0,%d], got %d", c.StartingPrice, c.PriceFloor)
	}
	if c.PriceGrowthFactor <= 1 {
		return fmt.Errorf("price growth factor must be > 1, got %v", c.PriceGrowthFactor)
	}
	if c.TransferFeeRate < 0 || c.TransferFeeRate > 1 {
		return fmt.Errorf("transfer fee rate must be in [0,1], got %v", c.TransferFeeRate)
	}
	if c.ShieldCostRate < 0 || c.ShieldCostRate > 1 {
		return fmt.Errorf("shield cost rate must be in [0,1], got %v", c.ShieldCostRate)
	}
	if c.ShieldDuration <= 0 {
		return fmt.Errorf("shield duration must be positive, got %v", c.ShieldDuration)
	}
	if c.IncomeMin < 0 || c.IncomeMax < c.IncomeMin {
		return fmt.Errorf("income range [%d,%d] is invalid", c.IncomeMin, c.IncomeMax)
	}
	if c.IncomeInterval <= 0 {
		return fmt.Errorf("income interval must be positive, got %v", c.IncomeInterval)
	}
	return nil
}
