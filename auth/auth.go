package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context keys for storing authenticated user information.
type contextKey string

const (
	contextKeyClaims contextKey = "jwt_claims"
	contextKeyUserID contextKey = "user_id"
	contextKeyRole   contextKey = "user_role"
)

// Role represents an authorized persona within the marketplace.
type Role string

// Supported roles. Clients purchase cosigning services and submit PSBTs;
// providers hold the second key and countersign; admins reach the ops surface.
const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

var allowedRoles = map[Role]struct{}{
	RoleClient:   {},
	RoleProvider: {},
	RoleAdmin:    {},
}

// Claims represents identity data extracted from the inbound request.
type Claims struct {
	Subject string
	Role    Role
}

// Verifier validates bearer tokens and produces Claims. With a configured
// secret it verifies HS256 JWTs carrying a "role" claim. Without one it
// accepts the "<subject>|<role>" development form used by the test suites;
// production deployments must always configure a secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// Config controls token verification.
type Config struct {
	// HS256Secret verifies token signatures. Leave empty only in tests.
	HS256Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Audience, when set, must match one of the token's aud values.
	Audience string
	// MaxSkew bounds clock drift between token issuer and this service.
	MaxSkew time.Duration
}

// NewVerifier constructs a Verifier from the supplied configuration.
func NewVerifier(cfg Config) *Verifier {
	leeway := cfg.MaxSkew
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Verifier{
		secret:   cfg.HS256Secret,
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   leeway,
	}
}

// Verify parses and validates a bearer token, returning the identity claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return parseDevToken(token)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims payload")
	}
	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, errors.New("token missing subject")
	}
	roleValue, _ := mapClaims["role"].(string)
	role := Role(strings.ToLower(strings.TrimSpace(roleValue)))
	if _, ok := allowedRoles[role]; !ok {
		return nil, fmt.Errorf("unsupported role %q", roleValue)
	}
	return &Claims{Subject: subject, Role: role}, nil
}

// parseDevToken accepts the "<subject>|<role>" form used when no signing
// secret is configured.
func parseDevToken(token string) (*Claims, error) {
	subject, roleStr, found := strings.Cut(token, "|")
	if !found {
		return nil, errors.New("malformed development token")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("token missing subject")
	}
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	if _, ok := allowedRoles[role]; !ok {
		return nil, fmt.Errorf("unsupported role %q", roleStr)
	}
	return &Claims{Subject: subject, Role: role}, nil
}

// Authenticate returns middleware that enforces bearer authentication and
// attaches the resulting Claims to the request context.
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if authz == "" {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}
		scheme, token, found := strings.Cut(authz, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			http.Error(w, "invalid authorization scheme", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			http.Error(w, "invalid authorization token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		ctx = context.WithValue(ctx, contextKeyUserID, claims.Subject)
		ctx = context.WithValue(ctx, contextKeyRole, string(claims.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext extracts the Claims previously attached by Authenticate.
func FromContext(ctx context.Context) (*Claims, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if claims, ok := ctx.Value(contextKeyClaims).(*Claims); ok && claims != nil {
		return claims, nil
	}
	return nil, errors.New("missing identity in context")
}

// RequireRole ensures the authenticated user has one of the allowed roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
