package api

import (
	"context"
	"net/http"

	"github.com/webpods-org/webpods/internal/auth"
	"github.com/webpods-org/webpods/internal/blob"
	"github.com/webpods-org/webpods/internal/cache"
	"github.com/webpods-org/webpods/internal/db"
	"github.com/webpods-org/webpods/internal/host"
	"github.com/webpods-org/webpods/internal/permission"
	"github.com/webpods-org/webpods/internal/ratelimit"
	"github.com/webpods-org/webpods/internal/record"
)

// Deps bundles every engine package the HTTP surface is built on.
type Deps struct {
	DB             *db.DB
	Engine         *record.Engine
	Permission     *permission.Resolver
	Cache          *cache.Cache
	RateLimit      *ratelimit.Limiter
	Blob           *blob.Store
	Auth           *auth.Verifier
	Host           *host.Resolver
	MaxPayloadSize uint64
	MaxRecordLimit int
}

type ctxKeyHost struct{}

func withHostResult(ctx context.Context, res host.Result) context.Context {
	return context.WithValue(ctx, ctxKeyHost{}, res)
}

func hostResultFromContext(ctx context.Context) host.Result {
	res, _ := ctx.Value(ctxKeyHost{}).(host.Result)
	return res
}

// NewRouter builds the full HTTP surface of spec.md §6: host resolution,
// then authentication (token kind validated against the resolved pod),
// then dispatch to either the main-domain handler or the pod handler.
func NewRouter(deps *Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/readyz", ReadyHandler(func(r *http.Request) error {
		return deps.DB.SQL.PingContext(r.Context())
	}))
	mux.Handle("/api/v1/metrics", MetricsHandler(deps))

	dispatch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := hostResultFromContext(r.Context())
		if res.IsMainDomain {
			mainDomainHandler(deps).ServeHTTP(w, r)
			return
		}
		podHandler(deps, res.PodName).ServeHTTP(w, r)
	})

	targetPodFn := func(r *http.Request) string {
		res := hostResultFromContext(r.Context())
		if res.IsMainDomain {
			return ""
		}
		return res.PodName
	}

	authenticated := auth.Middleware(deps.Auth, targetPodFn)(dispatch)

	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := deps.Host.Resolve(r.Context(), r)
		ctx := withHostResult(r.Context(), res)
		authenticated.ServeHTTP(w, r.WithContext(ctx))
	}))

	return mux
}
