package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/meetledger/meetledger/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, int32(10), cfg.PGMaxConns)
	require.Equal(t, 30*time.Minute, cfg.PGConnMaxLifetime)
	require.True(t, cfg.DefaultRate(cfg.RateDomesticDefault).Equal(decimal.NewFromInt(4)))
	require.True(t, cfg.DefaultRate(cfg.RateForeignDefault).Equal(decimal.NewFromInt(6)))
	require.True(t, cfg.DefaultRate(cfg.RateResellerDefault).Equal(decimal.NewFromInt(2)))
	require.True(t, cfg.DefaultRate(cfg.OperatorRate).Equal(decimal.NewFromInt(1)))
}

func TestLoadConfigRejectsBadRate(t *testing.T) {
	t.Setenv("RATE_DOMESTIC_DEFAULT", "not-a-decimal")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLogLevelParsing(t *testing.T) {
	require.Equal(t, slog.LevelInfo, logLevel(nil))
	require.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "debug"}))
	require.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "WARN"}))
	require.Equal(t, slog.LevelError, logLevel(&Config{LogLevel: "error"}))
	require.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "verbose"}))
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv("MEETLEDGER_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("MEETLEDGER_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
