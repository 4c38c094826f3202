// Package host implements the host-to-pod resolution of spec.md §4.1:
// main domain vs `<label>.<mainDomain>` subdomain vs a custom domain
// mapped through a pod's `.config/domains` stream, with an `X-Pod-Name`
// development override and an optional rootPod fallback.
package host

import (
	"context"
	"net/http"
	"strings"
)

// DomainLookup resolves a custom domain to its owning pod name, backed by
// each pod's `.config/domains` stream (spec.md §4.1c). Returns ("", false)
// when no pod claims the domain.
type DomainLookup func(ctx context.Context, domain string) (podName string, ok bool)

type Resolver struct {
	MainDomain string
	RootPod    string
	Lookup     DomainLookup
}

func New(mainDomain, rootPod string, lookup DomainLookup) *Resolver {
	return &Resolver{MainDomain: mainDomain, RootPod: rootPod, Lookup: lookup}
}

// Result is the outcome of resolving one request's Host header.
type Result struct {
	IsMainDomain bool
	PodName      string // empty when IsMainDomain is true
}

// Resolve checks, in order: the X-Pod-Name dev override (honoured only when
// the request host is localhost, 127.0.0.1 or [::1]), main domain,
// subdomain label, custom domain, then rootPod fallback. A host matching
// none of these, with no rootPod set, is treated as the main domain.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) Result {
	host := stripPort(req.Host)

	isLocal := strings.EqualFold(host, "localhost") || host == "127.0.0.1" || host == "[::1]"
	if devPod := req.Header.Get("X-Pod-Name"); devPod != "" && isLocal {
		return Result{PodName: devPod}
	}

	if strings.EqualFold(host, r.MainDomain) {
		return Result{IsMainDomain: true}
	}

	suffix := "." + strings.ToLower(r.MainDomain)
	if strings.HasSuffix(strings.ToLower(host), suffix) {
		label := host[:len(host)-len(suffix)]
		if label != "" && !strings.Contains(label, ".") {
			return Result{PodName: label}
		}
	}

	if r.Lookup != nil {
		if podName, ok := r.Lookup(ctx, host); ok {
			return Result{PodName: podName}
		}
	}

	if r.RootPod != "" {
		return Result{PodName: r.RootPod}
	}

	return Result{IsMainDomain: true}
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// Guard against bare IPv6 literals (no brackets) that also
		// contain colons; those never carry a webpods pod label anyway.
		if !strings.Contains(host[idx+1:], ":") {
			return host[:idx]
		}
	}
	return host
}
