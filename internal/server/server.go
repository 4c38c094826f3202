package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/webpods-org/webpods/internal/api"
	"github.com/webpods-org/webpods/internal/auth"
	"github.com/webpods-org/webpods/internal/blob"
	"github.com/webpods-org/webpods/internal/cache"
	"github.com/webpods-org/webpods/internal/config"
	"github.com/webpods-org/webpods/internal/db"
	"github.com/webpods-org/webpods/internal/host"
	"github.com/webpods-org/webpods/internal/permission"
	"github.com/webpods-org/webpods/internal/ratelimit"
	"github.com/webpods-org/webpods/internal/record"
)

// Server wires the engine packages into one http.Server, mirroring the
// teacher's atomic-config / dynamicHandler hot-reload pattern: the
// listening socket and its timeouts are fixed at construction, but the
// handler behind it (auth verifier, rate limits) can be swapped on a
// config reload without dropping connections.
type Server struct {
	cfg atomic.Value // *config.Config

	db         *db.DB
	engine     *record.Engine
	permission *permission.Resolver
	cache      *cache.Cache
	blob       *blob.Store
	host       *host.Resolver

	routeHandler *dynamicHandler
	httpServer   *http.Server
}

func New(cfg *config.Config, database *db.DB, engine *record.Engine, perm *permission.Resolver,
	c *cache.Cache, limiter *ratelimit.Limiter, blobStore *blob.Store, verifier *auth.Verifier, hostResolver *host.Resolver) *Server {

	s := &Server{db: database, engine: engine, permission: perm, cache: c, blob: blobStore, host: hostResolver}
	s.cfg.Store(cfg)

	router := api.NewRouter(s.buildDeps(cfg, limiter, verifier))
	s.routeHandler = newDynamicHandler(router)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.routeHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	return s
}

func (s *Server) buildDeps(cfg *config.Config, limiter *ratelimit.Limiter, verifier *auth.Verifier) *api.Deps {
	return &api.Deps{
		DB:             s.db,
		Engine:         s.engine,
		Permission:     s.permission,
		Cache:          s.cache,
		RateLimit:      limiter,
		Blob:           s.blob,
		Auth:           verifier,
		Host:           s.host,
		MaxPayloadSize: cfg.Blob.MaxPayloadSize,
		MaxRecordLimit: cfg.MaxRecordLimit,
	}
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// UpdateConfig rebuilds the router with a freshly verified auth secret,
// rate-limit ceilings, max payload size and max record limit, then swaps it
// in atomically.
// The listening address and timeouts set at New() are not revisited, and
// neither are the cache (with its TTLs) and record engine built at startup.
func (s *Server) UpdateConfig(cfg *config.Config, verifier *auth.Verifier, limiter *ratelimit.Limiter) {
	if cfg == nil {
		return
	}
	s.cfg.Store(cfg)
	router := api.NewRouter(s.buildDeps(cfg, limiter, verifier))
	s.routeHandler.Update(router)
}
