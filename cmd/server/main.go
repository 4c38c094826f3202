package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/webpods-org/webpods/internal/auth"
	"github.com/webpods-org/webpods/internal/blob"
	"github.com/webpods-org/webpods/internal/cache"
	"github.com/webpods-org/webpods/internal/config"
	"github.com/webpods-org/webpods/internal/db"
	"github.com/webpods-org/webpods/internal/host"
	"github.com/webpods-org/webpods/internal/permission"
	"github.com/webpods-org/webpods/internal/ratelimit"
	"github.com/webpods-org/webpods/internal/record"
	"github.com/webpods-org/webpods/internal/server"
)

func main() {
	logger := log.New(os.Stdout, "webpods ", log.LstdFlags|log.LUTC)

	cfg, path, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	logger.Printf("loaded config from %s", path)
	if result := config.Validate(cfg); len(result.Warnings) > 0 {
		for _, w := range result.Warnings {
			logger.Printf("config warning: %s", w)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(cfg.Storage.DatabaseURL)
	if err != nil {
		logger.Fatalf("database error: %v", err)
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatalf("auth setup error: %v", err)
	}

	cacheBackend, cacheKind, err := newCacheBackend(ctx, cfg.Cache)
	if err != nil {
		logger.Fatalf("cache backend error: %v", err)
	}
	logger.Printf("cache backend: %s", cacheKind)
	recordCache := cache.New(cacheBackend, cache.PoolTTLs(cfg.Cache.Pools))

	rateAdapter, rateKind, err := newRateAdapter(ctx, database, cfg.RateLimit)
	if err != nil {
		logger.Fatalf("rate limit adapter error: %v", err)
	}
	logger.Printf("rate limit adapter: %s", rateKind)
	limiter := ratelimit.New(rateAdapter, ratelimit.Limits{
		Read: cfg.RateLimits.Read, Write: cfg.RateLimits.Write,
		PodCreate: cfg.RateLimits.PodCreate, StreamCreate: cfg.RateLimits.StreamCreate,
	})

	blobStore := blob.New(cfg.Blob.Root, cfg.Blob.ExternalCDNBase, cfg.Blob.CacheTTLSeconds)
	hostResolver := host.New(cfg.MainDomain, cfg.RootPod, func(lookupCtx context.Context, domain string) (string, bool) {
		podName, err := database.FindPodByDomain(lookupCtx, domain)
		if err != nil {
			return "", false
		}
		return podName, true
	})
	engine := record.New(database, blobStore, nil, cfg.Blob.ExternalThreshold, cfg.MaxRecordLimit)
	perm := permission.New(database)

	srv := server.New(cfg, database, engine, perm, recordCache, limiter, blobStore, verifier, hostResolver)

	go watchConfig(ctx, logger, path, func(updated *config.Config) {
		newVerifier, err := auth.NewVerifier(updated.Auth.JWTSecret)
		if err != nil {
			logger.Printf("config reload: auth verifier update failed: %v", err)
			return
		}
		newLimiter := ratelimit.New(rateAdapter, ratelimit.Limits{
			Read: updated.RateLimits.Read, Write: updated.RateLimits.Write,
			PodCreate: updated.RateLimits.PodCreate, StreamCreate: updated.RateLimits.StreamCreate,
		})
		srv.UpdateConfig(updated, newVerifier, newLimiter)
	})

	go func() {
		logger.Printf("server listening on %s", cfg.Server.Address)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Printf("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
}

func newCacheBackend(ctx context.Context, cfg config.CacheConfig) (cache.Backend, string, error) {
	switch cfg.Adapter {
	case "redis":
		client, err := ratelimit.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, "", err
		}
		return cache.NewRedisBackend(client), "redis", nil
	case "none":
		return cache.NoneBackend{}, "none", nil
	default:
		return cache.NewInMemoryBackend(), "in-memory", nil
	}
}

func newRateAdapter(ctx context.Context, database *db.DB, cfg config.RateLimitConfig) (ratelimit.Adapter, string, error) {
	switch cfg.Adapter {
	case "redis":
		client, err := ratelimit.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, "", err
		}
		return ratelimit.NewRedisAdapter(client), "redis", nil
	case "in-memory":
		return ratelimit.NewInMemoryAdapter(), "in-memory", nil
	case "none":
		return ratelimit.NoneAdapter{}, "none", nil
	default:
		return ratelimit.NewSQLAdapter(database), "sql", nil
	}
}

func watchConfig(ctx context.Context, logger *log.Logger, path string, onReload func(cfg *config.Config)) {
	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("config watcher error: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Printf("config watcher error: %v", err)
		return
	}
	if err := watcher.Add(path); err != nil {
		logger.Printf("config watcher error: %v", err)
	}

	var mu sync.Mutex
	var timer *time.Timer

	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(500*time.Millisecond, func() {
			updated, err := config.LoadFromPath(path)
			if err != nil {
				logger.Printf("config reload error: %v", err)
				return
			}
			logger.Printf("config reloaded from %s", path)
			onReload(updated)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				scheduleReload()
			}
		case err := <-watcher.Errors:
			if err != nil {
				logger.Printf("config watcher error: %v", err)
			}
		}
	}
}
