package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutEnv(t *testing.T) {
	for _, k := range []string{"TTVM_WORKERS", "TTVM_REDUCTIONS", "TTVM_REDIS_ADDR", "TTVM_PROFILE_ADDR", "TTVM_CONSOLE_ADDR"} {
		os.Unsetenv(k)
	}
	settings := Load()
	require.Equal(t, 0, settings.Workers)
	require.Equal(t, 1000, settings.ReductionBudget)
	require.Empty(t, settings.RedisAddr)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	os.Setenv("TTVM_WORKERS", "4")
	os.Setenv("TTVM_REDUCTIONS", "500")
	os.Setenv("TTVM_REDIS_ADDR", "localhost:6379")
	defer func() {
		os.Unsetenv("TTVM_WORKERS")
		os.Unsetenv("TTVM_REDUCTIONS")
		os.Unsetenv("TTVM_REDIS_ADDR")
	}()

	settings := Load()
	require.Equal(t, 4, settings.Workers)
	require.Equal(t, 500, settings.ReductionBudget)
	require.Equal(t, "localhost:6379", settings.RedisAddr)
}

func TestLoadFallsBackOnUnparsableInt(t *testing.T) {
	os.Setenv("TTVM_WORKERS", "not-a-number")
	defer os.Unsetenv("TTVM_WORKERS")

	settings := Load()
	require.Equal(t, 0, settings.Workers)
}
