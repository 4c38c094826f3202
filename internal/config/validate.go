package config

import (
	"strings"
)

type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func Validate(cfg *Config) ValidationResult {
	if cfg == nil {
		return ValidationResult{Errors: []string{"config is nil"}}
	}

	var errs []string
	var warns []string

	if cfg.MainDomain == "" {
		errs = append(errs, "main_domain is required")
	}
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required")
	} else if len(cfg.Auth.JWTSecret) < 16 {
		warns = append(warns, "auth.jwt_secret is short; prefer at least 16 bytes of entropy")
	}

	if strings.TrimSpace(cfg.Server.Address) == "" {
		errs = append(errs, "server.address is required")
	}

	if cfg.Blob.Root == "" {
		errs = append(errs, "blob.root is required")
	}

	switch cfg.RateLimit.Adapter {
	case "sql", "in-memory", "redis", "none":
	default:
		errs = append(errs, "rate_limit.adapter must be one of sql, in-memory, redis, none")
	}
	if cfg.RateLimit.Adapter == "redis" && cfg.RateLimit.RedisURL == "" {
		errs = append(errs, "rate_limit.adapter=redis requires rate_limit.redis_url")
	}

	switch cfg.Cache.Adapter {
	case "in-memory", "redis", "none":
	default:
		errs = append(errs, "cache.adapter must be one of in-memory, redis, none")
	}
	if cfg.Cache.Adapter == "redis" && cfg.Cache.RedisURL == "" {
		errs = append(errs, "cache.adapter=redis requires cache.redis_url")
	}

	if cfg.RateLimits.Read <= 0 || cfg.RateLimits.Write <= 0 {
		warns = append(warns, "rate_limits.read and rate_limits.write should be > 0")
	}

	if cfg.MaxRecordLimit <= 0 {
		warns = append(warns, "max_record_limit should be > 0")
	}

	if cfg.RootPod == "" {
		warns = append(warns, "root_pod is empty; requests for hosts that match no pod are handled as main-domain requests")
	}

	return ValidationResult{Errors: errs, Warnings: warns}
}
