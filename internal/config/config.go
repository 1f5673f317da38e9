// Package config loads the control plane's environment-variable driven
// configuration. No example repo in the retrieval pack carries a dedicated
// env-config library (envconfig, caarlos0/env); wrapping a dozen
// os.LookupEnv calls in one would not pull its weight, so this package
// reads the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sattyamjjain/ferrumdeck/internal/airlock"
)

// Config is the control plane's full runtime configuration, loaded once at
// startup from the environment variables in spec.md §6.
type Config struct {
	DatabaseURL      string
	RedisURL         string
	RedisQueuePrefix string
	APIKeySecret     string
	Env              string
	AirlockMode      airlock.Mode

	OAuth2Enabled     bool
	OAuth2JWKSURI     string
	OAuth2Issuer      string
	OAuth2Audience    string
	OAuth2TenantClaim string
	OAuth2ScopeClaim  string

	RunMigrations bool

	OTELExporterOTLPEndpoint string

	GatewayHost string
	GatewayPort int

	// Warnings holds non-fatal configuration concerns discovered during
	// Load, e.g. a present but short API_KEY_SECRET. The caller logs
	// these once a logger is available; Load itself has none yet.
	Warnings []string
}

// IsProduction reports whether FERRUMDECK_ENV selects strict production
// mode.
func (c Config) IsProduction() bool { return c.Env == "production" }

// Load reads Config from the process environment, applying the documented
// defaults for every variable that is not required.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         getenvDefault("REDIS_URL", "redis://127.0.0.1:6379"),
		RedisQueuePrefix: getenvDefault("REDIS_QUEUE_PREFIX", "ferrumdeck:"),
		APIKeySecret:     os.Getenv("API_KEY_SECRET"),
		Env:              getenvDefault("FERRUMDECK_ENV", "development"),

		OAuth2JWKSURI:     os.Getenv("OAUTH2_JWKS_URI"),
		OAuth2Issuer:      os.Getenv("OAUTH2_ISSUER"),
		OAuth2Audience:    os.Getenv("OAUTH2_AUDIENCE"),
		OAuth2TenantClaim: getenvDefault("OAUTH2_TENANT_CLAIM", "tenant_id"),
		OAuth2ScopeClaim:  getenvDefault("OAUTH2_SCOPE_CLAIM", "scope"),

		OTELExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		GatewayHost: getenvDefault("GATEWAY_HOST", "0.0.0.0"),
	}

	mode, err := parseAirlockMode(os.Getenv("FERRUMDECK_AIRLOCK_MODE"))
	if err != nil {
		return Config{}, err
	}
	cfg.AirlockMode = mode

	oauth2Enabled, err := parseBoolDefault("OAUTH2_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.OAuth2Enabled = oauth2Enabled

	runMigrations, err := parseBoolDefault("RUN_MIGRATIONS", false)
	if err != nil {
		return Config{}, err
	}
	cfg.RunMigrations = runMigrations

	port, err := parseIntDefault("GATEWAY_PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	cfg.GatewayPort = port

	if cfg.IsProduction() && cfg.APIKeySecret == "" {
		return Config{}, fmt.Errorf("config: API_KEY_SECRET is required when FERRUMDECK_ENV=production")
	}
	if cfg.IsProduction() && len(cfg.APIKeySecret) < 32 {
		cfg.Warnings = append(cfg.Warnings,
			"API_KEY_SECRET is shorter than the recommended 32 bytes for production")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseBoolDefault(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: invalid bool %q", key, v)
	}
	return b, nil
}

func parseIntDefault(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid int %q", key, v)
	}
	return n, nil
}

func parseAirlockMode(v string) (airlock.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "shadow":
		return airlock.ModeShadow, nil
	case "enforce":
		return airlock.ModeEnforce, nil
	default:
		return airlock.ModeShadow, fmt.Errorf("config: FERRUMDECK_AIRLOCK_MODE: invalid value %q (want \"shadow\" or \"enforce\")", v)
	}
}
