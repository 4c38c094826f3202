// Package auth verifies the signed bearer tokens produced by the
// out-of-core OAuth/OIDC authorization server and exposes the resulting
// principal to handlers via the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/webpods-org/webpods/internal/corerr"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// TokenKind distinguishes a global token (usable only on the main domain)
// from a pod-scoped token (usable only against its own pod subdomain).
type TokenKind string

const (
	KindGlobal TokenKind = "global"
	KindPod    TokenKind = "pod"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Pods   []string
}

// Claims is the wire shape of a WebPods bearer token: {subject, pod?, type}.
type Claims struct {
	Pod   string    `json:"pod,omitempty"`
	Type  TokenKind `json:"type"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against a shared HMAC secret. The secret
// is fixed at construction, so a Verifier is safe for concurrent use; a
// config hot-reload builds a new Verifier rather than changing this one.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Token represents a decoded, unvalidated-against-host bearer token.
type Token struct {
	Principal Principal
	Kind      TokenKind
	Pod       string
}

func (v *Verifier) ParseToken(tokenString string) (*Token, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	kind := claims.Type
	if kind == "" {
		if claims.Pod != "" {
			kind = KindPod
		} else {
			kind = KindGlobal
		}
	}

	return &Token{
		Principal: Principal{
			UserID: claims.Subject,
			Email:  claims.Email,
			Name:   claims.Name,
		},
		Kind: kind,
		Pod:  claims.Pod,
	}, nil
}

// AuthenticateRequest extracts and verifies the bearer token, if present.
// A missing Authorization header is not itself an error: callers decide
// whether the route requires authentication.
func (v *Verifier) AuthenticateRequest(r *http.Request) (*Token, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, ErrMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrMissingToken
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	return v.ParseToken(tokenString)
}

// Resolve checks a parsed token against the pod the request targets and
// returns the resulting Principal. A global token is only valid when
// targetPod is empty (main domain); a pod-scoped token's claim must match
// targetPod exactly.
func Resolve(tok *Token, targetPod string) (*Principal, error) {
	switch tok.Kind {
	case KindGlobal:
		if targetPod != "" {
			return nil, corerr.New(corerr.PodMismatch, "global token used against a pod subdomain")
		}
	case KindPod:
		if tok.Pod == "" || tok.Pod != targetPod {
			return nil, corerr.New(corerr.PodMismatch, "token pod claim does not match request host")
		}
	default:
		return nil, corerr.New(corerr.InvalidToken, "unknown token type")
	}
	p := tok.Principal
	return &p, nil
}

type ctxKey struct{}

// WithPrincipal attaches p to ctx for downstream handlers.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal attached to ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok
}

// Middleware authenticates the request and, when a token is present,
// attaches the resulting Principal to the context. It never rejects an
// unauthenticated request outright — that decision belongs to the
// permission resolver and the per-route auth requirement — except when
// a token is present but invalid or mismatched, which is always an error.
func Middleware(v *Verifier, targetPodFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := v.AuthenticateRequest(r)
			if err != nil {
				if errors.Is(err, ErrMissingToken) {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, err)
				return
			}

			targetPod := ""
			if targetPodFn != nil {
				targetPod = targetPodFn(r)
			}
			principal, err := Resolve(tok, targetPod)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that carry no principal in context. Use it
// on routes where spec.md marks auth as "required" rather than "per
// stream"/"optional".
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeAuthError(w, ErrMissingToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case corerr.Is(err, corerr.PodMismatch):
		httpError(w, http.StatusUnauthorized, corerr.PodMismatch, err.Error())
	case errors.Is(err, ErrExpired):
		httpError(w, http.StatusUnauthorized, corerr.TokenExpired, err.Error())
	case errors.Is(err, ErrMissingToken):
		httpError(w, http.StatusUnauthorized, corerr.Unauthorized, err.Error())
	default:
		httpError(w, http.StatusUnauthorized, corerr.InvalidToken, err.Error())
	}
}

func httpError(w http.ResponseWriter, status int, code corerr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, code, message)
}
