package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drove")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, int64(300), cfg.StartingBalance)
	require.Equal(t, int64(100), cfg.StartingPrice)
	require.Equal(t, int64(50), cfg.PriceFloor)
	require.InDelta(t, 1.3, cfg.PriceGrowthFactor, 1e-9)
	require.Equal(t, 24*time.Hour, cfg.ShieldDuration)
	require.InDelta(t, 0.35, cfg.ShieldCostRate, 1e-9)
	require.Equal(t, int64(1), cfg.IncomeMin)
	require.Equal(t, int64(3), cfg.IncomeMax)
	require.Equal(t, time.Hour, cfg.IncomeInterval)
	require.Empty(t, cfg.ServiceToken)
	require.Equal(t, int32(16), cfg.DBMaxConns)
	require.Equal(t, int32(1), cfg.DBMinConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drove")
	t.Setenv("DROVE_API_ADDR", ":9999")
	t.Setenv("DROVE_STARTING_BALANCE", "500")
	t.Setenv("DROVE_SHIELD_DURATION", "1h30m")
	t.Setenv("DROVE_SERVICE_TOKEN", "sekrit")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, int64(500), cfg.StartingBalance)
	require.Equal(t, 90*time.Minute, cfg.ShieldDuration)
	require.Equal(t, "sekrit", cfg.ServiceToken)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	// t.Setenv registers the env cleanup even for an empty value.
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"DROVE_STARTING_PRICE":      "0",
		"DROVE_PRICE_FLOOR":         "200",
		"DROVE_PRICE_GROWTH_FACTOR": "1.0",
		"DROVE_TRANSFER_FEE_RATE":   "1.5",
		"DROVE_SHIELD_COST_RATE":    "-0.1",
		"DROVE_SHIELD_DURATION":     "-1h",
		"DROVE_INCOME_MIN":          "-1",
		"DROVE_INCOME_INTERVAL":     "0s",
		"DROVE_DB_MAX_CONNS":        "0",
		"DROVE_DB_MIN_CONNS":        "64",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/drove")
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedIncomeRange(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/drove")
	t.Setenv("DROVE_INCOME_MIN", "5")
	t.Setenv("DROVE_INCOME_MAX", "2")

	_, err := Load()
	require.Error(t, err)
}
