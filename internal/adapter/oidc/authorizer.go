// Package oidc implements the authorization port on verified OpenID Connect
// ID tokens.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/port/authz"
)

// ErrUnauthenticated is returned when no bearer token is presented.
var ErrUnauthenticated = errors.New("unauthenticated")

var _ authz.Authorizer = (*Authorizer)(nil)

// Identity is the principal extracted from a verified token.
type Identity struct {
	Subject string
	Roles   []string
	// Grants maps resource ids to the permissions granted on them.
	Grants map[int64][]string
}

type ctxKeyIdentity struct{}

// ContextWithIdentity returns a copy of ctx carrying id.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, id)
}

// IdentityFromContext returns the identity carried by ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return id, ok
}

// Authorizer verifies ID tokens and answers permission checks for the
// identity carried in the context. Owners and admins may do anything;
// others need a grant in the permission claim.
type Authorizer struct {
	verifier *oidc.IDTokenVerifier
	cfg      config.Auth
}

// NewAuthorizer discovers the issuer and builds a verifier for cfg.ClientID.
func NewAuthorizer(ctx context.Context, cfg config.Auth) (*Authorizer, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return NewAuthorizerWithVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

// NewAuthorizerWithVerifier builds an Authorizer around an existing verifier.
func NewAuthorizerWithVerifier(v *oidc.IDTokenVerifier, cfg config.Auth) *Authorizer {
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = "roles"
	}
	return &Authorizer{verifier: v, cfg: cfg}
}

// Authenticate verifies rawToken and extracts the identity.
func (a *Authorizer) Authenticate(ctx context.Context, rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, ErrUnauthenticated
	}
	tok, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, fmt.Errorf("verify id token: %w", err)
	}
	var claims map[string]any
	if err := tok.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("decode claims: %w", err)
	}
	return Identity{
		Subject: tok.Subject,
		Roles:   stringsClaim(claims[a.cfg.RolesClaim]),
		Grants:  grantsClaim(claims[a.cfg.PermissionClaim]),
	}, nil
}

// Middleware authenticates the bearer token of each request. Requests
// without a valid token are rejected with 401.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func (a *Authorizer) IsAdmin(ctx context.Context) bool {
	id, ok := IdentityFromContext(ctx)
	return ok && a.cfg.AdminRole != "" && slices.Contains(id.Roles, a.cfg.AdminRole)
}

func (a *Authorizer) IsAllowed(ctx context.Context, permission string, res authz.Resource) bool {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	if a.IsAdmin(ctx) || (res.Owner != "" && res.Owner == id.Subject) {
		return true
	}
	return slices.Contains(id.Grants[res.ID], permission)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// stringsClaim accepts a string list or a single string.
func stringsClaim(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// grantsClaim decodes {"<id>": ["READ", ...]}. Malformed ids are skipped.
func grantsClaim(v any) map[int64][]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[int64][]string, len(m))
	for k, perms := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = stringsClaim(perms)
	}
	return out
}
