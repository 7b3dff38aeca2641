// Package config provides centralized configuration management.
// Eliminates scattered os.Getenv calls across the codebase.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AutopilotEnv holds all autopilot environment variables.
type AutopilotEnv struct {
	// DataDir is where the durable store lives (AUTOPILOT_DATA_DIR)
	DataDir string

	// AgentBin is the external compute agent binary (AUTOPILOT_AGENT_BIN)
	AgentBin string

	// PollInterval is how often the engine polls active executions (AUTOPILOT_POLL_INTERVAL)
	PollInterval time.Duration

	// StaleAfter is the no-progress window before the decision oracle is
	// consulted (AUTOPILOT_STALE_AFTER)
	StaleAfter time.Duration

	// DefaultTimeout bounds a single agent invocation (AUTOPILOT_TIMEOUT)
	DefaultTimeout time.Duration

	// KillGrace is how long a cancelled process gets before SIGKILL (AUTOPILOT_KILL_GRACE)
	KillGrace time.Duration

	// Project is the default project identifier (AUTOPILOT_PROJECT)
	Project string
}

var (
	env     *AutopilotEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *AutopilotEnv {
	envOnce.Do(func() {
		env = &AutopilotEnv{
			DataDir:        getEnvDefault("AUTOPILOT_DATA_DIR", defaultDataDir()),
			AgentBin:       getEnvDefault("AUTOPILOT_AGENT_BIN", "agent"),
			PollInterval:   getEnvDuration("AUTOPILOT_POLL_INTERVAL", 5*time.Second),
			StaleAfter:     getEnvDuration("AUTOPILOT_STALE_AFTER", 10*time.Minute),
			DefaultTimeout: getEnvDuration("AUTOPILOT_TIMEOUT", 30*time.Minute),
			KillGrace:      getEnvDuration("AUTOPILOT_KILL_GRACE", 5*time.Second),
			Project:        os.Getenv("AUTOPILOT_PROJECT"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

// Skill returns the skill identifier configured for a phase, or the
// fallback when no AUTOPILOT_SKILL_<PHASE> override is set.
func Skill(phase, fallback string) string {
	key := "AUTOPILOT_SKILL_" + strings.ToUpper(phase)
	return getEnvDefault(key, fallback)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autopilot"
	}
	return filepath.Join(home, ".autopilot")
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
