// Package config loads runtime settings the way the teacher's flag-only
// setup never needed to: an optional .env file (github.com/joho/godotenv)
// layered under environment variables, which are themselves layered
// under explicit CLI flags. Nothing here is required -- a missing .env
// file or unset variable just falls through to a built-in default.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Settings holds the knobs the scheduler pool and interpreter need at
// startup.
type Settings struct {
	Workers         int
	ReductionBudget int
	RedisAddr       string
	ProfileAddr     string
	ConsoleAddr     string
}

// Load reads an optional .env file (ignored if absent) and then
// TTVM_WORKERS / TTVM_REDUCTIONS / TTVM_REDIS_ADDR / TTVM_PROFILE_ADDR /
// TTVM_CONSOLE_ADDR from the environment.
func Load() Settings {
	_ = godotenv.Load()

	return Settings{
		Workers:         envInt("TTVM_WORKERS", 0),
		ReductionBudget: envInt("TTVM_REDUCTIONS", 1000),
		RedisAddr:       os.Getenv("TTVM_REDIS_ADDR"),
		ProfileAddr:     os.Getenv("TTVM_PROFILE_ADDR"),
		ConsoleAddr:     os.Getenv("TTVM_CONSOLE_ADDR"),
	}
}

func envInt(name string, fallback int) int {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
