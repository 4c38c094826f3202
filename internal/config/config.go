package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MainDomain     string          `yaml:"main_domain"`
	RootPod        string          `yaml:"root_pod"`
	Server         ServerConfig    `yaml:"server"`
	Auth           AuthConfig      `yaml:"auth"`
	Storage        StorageConfig   `yaml:"storage"`
	Blob           BlobConfig      `yaml:"blob"`
	RateLimits     RateLimits      `yaml:"rate_limits"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	MaxRecordLimit int             `yaml:"max_record_limit"`
	Cache          CacheConfig     `yaml:"cache"`
}

type ServerConfig struct {
	Address             string `yaml:"address"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
}

// AuthConfig holds the shared secret used to verify bearer tokens minted by
// the out-of-core OAuth/OIDC authorization server. The core never talks to
// an authorization server itself; it only verifies signatures locally.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type BlobConfig struct {
	Root              string `yaml:"root"`
	ExternalCDNBase   string `yaml:"external_cdn_base"`
	MaxPayloadSizeStr string `yaml:"max_payload_size"`
	ExternalThreshStr string `yaml:"external_threshold"`
	MaxPayloadSize    uint64 `yaml:"-"`
	ExternalThreshold uint64 `yaml:"-"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
}

type RateLimits struct {
	Read         int `yaml:"read"`
	Write        int `yaml:"write"`
	PodCreate    int `yaml:"pod_create"`
	StreamCreate int `yaml:"stream_create"`
}

type RateLimitConfig struct {
	Adapter  string `yaml:"adapter"` // sql|in-memory|redis|none
	RedisURL string `yaml:"redis_url"`
}

type CacheConfig struct {
	Adapter  string        `yaml:"adapter"` // in-memory|redis|none
	RedisURL string        `yaml:"redis_url"`
	Pools    CachePoolTTLs `yaml:"pools"`
}

type CachePoolTTLs struct {
	PodsSeconds          int `yaml:"pods_seconds"`
	StreamsSeconds       int `yaml:"streams_seconds"`
	SingleRecordsSeconds int `yaml:"single_records_seconds"`
	RecordListsSeconds   int `yaml:"record_lists_seconds"`
}

func Load() (*Config, string, error) {
	path := os.Getenv("WEBPODS_CONFIG")
	if path == "" {
		path = os.Getenv("WEBPODS_CONFIG_PATH")
	}

	candidates := []string{}
	if path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates,
		"/etc/webpods/config.yaml",
		"./config.yaml",
	)

	var selected string
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			selected = candidate
			break
		}
	}
	if selected == "" {
		return nil, "", errors.New("config file not found")
	}

	cfg, err := LoadFromPath(selected)
	if err != nil {
		return nil, "", err
	}
	return cfg, selected, nil
}

func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := parseByteSizes(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 8080
		}
		cfg.Server.Address = fmt.Sprintf(":%d", port)
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 10
	}
	if cfg.Server.IdleTimeoutSeconds == 0 {
		cfg.Server.IdleTimeoutSeconds = 60
	}

	if cfg.RateLimits.Read == 0 {
		cfg.RateLimits.Read = 10000
	}
	if cfg.RateLimits.Write == 0 {
		cfg.RateLimits.Write = 1000
	}
	if cfg.RateLimits.PodCreate == 0 {
		cfg.RateLimits.PodCreate = 10
	}
	if cfg.RateLimits.StreamCreate == 0 {
		cfg.RateLimits.StreamCreate = 100
	}
	if cfg.RateLimit.Adapter == "" {
		cfg.RateLimit.Adapter = "sql"
	}

	if cfg.Blob.MaxPayloadSizeStr == "" {
		cfg.Blob.MaxPayloadSizeStr = "10MiB"
	}
	if cfg.Blob.ExternalThreshStr == "" {
		cfg.Blob.ExternalThreshStr = "256KiB"
	}
	if cfg.Blob.CacheTTLSeconds == 0 {
		cfg.Blob.CacheTTLSeconds = 3600
	}

	if cfg.MaxRecordLimit == 0 {
		cfg.MaxRecordLimit = 1000
	}

	if cfg.Cache.Adapter == "" {
		cfg.Cache.Adapter = "in-memory"
	}
	if cfg.Cache.Pools.PodsSeconds == 0 {
		cfg.Cache.Pools.PodsSeconds = 30
	}
	if cfg.Cache.Pools.StreamsSeconds == 0 {
		cfg.Cache.Pools.StreamsSeconds = 30
	}
	if cfg.Cache.Pools.SingleRecordsSeconds == 0 {
		cfg.Cache.Pools.SingleRecordsSeconds = 15
	}
	if cfg.Cache.Pools.RecordListsSeconds == 0 {
		cfg.Cache.Pools.RecordListsSeconds = 5
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if val := strings.TrimSpace(os.Getenv("WEBPODS_CACHE_REDIS_URL")); val != "" {
		cfg.Cache.RedisURL = val
		cfg.Cache.Adapter = "redis"
	}
	if val := strings.TrimSpace(os.Getenv("WEBPODS_CACHE_ADAPTER")); val != "" {
		cfg.Cache.Adapter = val
	}
	if val := strings.TrimSpace(os.Getenv("WEBPODS_JWT_SECRET")); val != "" {
		cfg.Auth.JWTSecret = val
	}
	if val := strings.TrimSpace(os.Getenv("WEBPODS_DATABASE_URL")); val != "" {
		cfg.Storage.DatabaseURL = val
	}
}

func parseByteSizes(cfg *Config) error {
	maxPayload, err := humanize.ParseBytes(cfg.Blob.MaxPayloadSizeStr)
	if err != nil {
		return fmt.Errorf("blob.max_payload_size: %w", err)
	}
	cfg.Blob.MaxPayloadSize = maxPayload

	threshold, err := humanize.ParseBytes(cfg.Blob.ExternalThreshStr)
	if err != nil {
		return fmt.Errorf("blob.external_threshold: %w", err)
	}
	cfg.Blob.ExternalThreshold = threshold
	return nil
}

func validate(cfg *Config) error {
	if cfg.MainDomain == "" {
		return errors.New("main_domain is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Storage.DatabaseURL == "" {
		return errors.New("storage.database_url is required")
	}
	if cfg.Blob.Root == "" {
		return errors.New("blob.root is required")
	}
	return nil
}
