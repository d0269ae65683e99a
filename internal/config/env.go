package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPolicy captures the environment-level trading switches once, at startup,
// so constructors receive explicit configuration instead of reading the
// process environment at arbitrary call sites.
type EnvPolicy struct {
	RealTradingEnabled bool
	AllowAfterHours    bool
	MaxOrderUSD        float64 // 0 when unset
	ClipOrderToMax     bool
	LiveBroker         string
}

// PolicyFromEnv parses the recognized environment switches.
func PolicyFromEnv() EnvPolicy {
	p := EnvPolicy{
		RealTradingEnabled: Truthy(os.Getenv("REAL_TRADING_ENABLED")),
		AllowAfterHours:    Truthy(os.Getenv("ALLOW_AFTER_HOURS")),
		ClipOrderToMax:     Truthy(os.Getenv("CLIP_ORDER_TO_MAX")),
		LiveBroker:         os.Getenv("LIVE_BROKER"),
	}
	if raw := os.Getenv("LIVE_MAX_ORDER_USD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			p.MaxOrderUSD = v
		}
	}
	return p
}

// Truthy reports whether an environment value means "on".
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// LoadEnvFile loads KEY=VALUE lines from a .env-style file without overriding
// variables already exported. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if path = os.Getenv("LAB_ENV_FILE"); path == "" {
			path = ".env"
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
	return nil
}
