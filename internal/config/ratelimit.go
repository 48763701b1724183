package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig configures the token bucket placed in front of the
// credential endpoints (register, login, forgot-password, reset-password).
// The defaults mirror a "100 requests per 15 minutes per client" window:
// a bucket of Capacity tokens refilled by RefillTokens every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables. RATE_LIMIT_MAX_REQUESTS
// and RATE_LIMIT_WINDOW_MINUTES describe a fixed window and are translated
// into an equivalent bucket; the finer RATE_LIMIT_CAPACITY /
// RATE_LIMIT_REFILL_* knobs win when both are present.
func LoadRateLimitConfig() RateLimitConfig {
	maxReq := envInt("RATE_LIMIT_MAX_REQUESTS", 100)
	window := time.Duration(envInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute

	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", maxReq),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", maxReq),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", window),
		TTL:            envDur("RATE_LIMIT_TTL", 2*window),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl:auth"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Minute
	}
	if minTTL := 2 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
