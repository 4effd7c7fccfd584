package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/port/authz"
)

const (
	testIssuer   = "https://issuer.test"
	testClientID = "cloudlaunch"
)

func testAuthorizer() *Authorizer {
	v := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{}, &oidc.Config{
		ClientID:                   testClientID,
		InsecureSkipSignatureCheck: true,
	})
	return NewAuthorizerWithVerifier(v, config.Auth{
		AdminRole:       "ROLE_ADMIN",
		RolesClaim:      "roles",
		PermissionClaim: "cloud_regions",
	})
}

// unsignedToken builds a JWT with alg "none".
func unsignedToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	claims["iss"] = testIssuer
	claims["aud"] = testClientID
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." + enc.EncodeToString(payload) + "."
}

func TestAuthenticateExtractsClaims(t *testing.T) {
	a := testAuthorizer()
	tok := unsignedToken(t, map[string]any{
		"sub":           "alice",
		"roles":         []string{"ROLE_USER"},
		"cloud_regions": map[string]any{"2": []string{"READ"}, "x": []string{"READ"}},
	})

	id, err := a.Authenticate(context.Background(), tok)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "alice" || len(id.Roles) != 1 || id.Roles[0] != "ROLE_USER" {
		t.Errorf("identity = %+v", id)
	}
	if len(id.Grants) != 1 || id.Grants[2][0] != "READ" {
		t.Errorf("grants = %v", id.Grants)
	}
}

func TestAuthenticateRejectsEmptyToken(t *testing.T) {
	_, err := testAuthorizer().Authenticate(context.Background(), "")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestIsAllowed(t *testing.T) {
	a := testAuthorizer()
	region := func(id int64, owner string) authz.Resource {
		return authz.Resource{Kind: "cloud_region", ID: id, Owner: owner}
	}

	tests := []struct {
		name string
		id   *Identity
		perm string
		res  authz.Resource
		want bool
	}{
		{"anonymous", nil, authz.PermissionRead, region(1, "bob"), false},
		{"owner", &Identity{Subject: "bob"}, authz.PermissionWrite, region(1, "bob"), true},
		{"admin", &Identity{Subject: "eve", Roles: []string{"ROLE_ADMIN"}}, authz.PermissionWrite, region(1, "bob"), true},
		{"granted", &Identity{Subject: "alice", Grants: map[int64][]string{1: {"READ"}}}, authz.PermissionRead, region(1, "bob"), true},
		{"other permission", &Identity{Subject: "alice", Grants: map[int64][]string{1: {"READ"}}}, authz.PermissionWrite, region(1, "bob"), false},
		{"other region", &Identity{Subject: "alice", Grants: map[int64][]string{1: {"READ"}}}, authz.PermissionRead, region(2, "bob"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.id != nil {
				ctx = ContextWithIdentity(ctx, *tt.id)
			}
			if got := a.IsAllowed(ctx, tt.perm, tt.res); got != tt.want {
				t.Errorf("IsAllowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	a := testAuthorizer()
	var seen string
	h := a.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		seen = id.Subject
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+unsignedToken(t, map[string]any{"sub": "alice"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != "alice" {
		t.Errorf("status = %d, subject = %q", rec.Code, seen)
	}
}
