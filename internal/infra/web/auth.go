// File: internal/infra/web/auth.go
package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/ports/adapter"
)

type ctxKey int

const identityKey ctxKey = iota

// SupabaseVerifier validates HS256 access tokens minted by Supabase Auth.
// The shared signing secret comes from the environment.
type SupabaseVerifier struct {
	secret []byte
}

var _ adapter.TokenVerifier = (*SupabaseVerifier)(nil)

func NewSupabaseVerifier(secret string) *SupabaseVerifier {
	return &SupabaseVerifier{secret: []byte(secret)}
}

type supabaseClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (v *SupabaseVerifier) Verify(token string) (*adapter.Identity, error) {
	if len(v.secret) == 0 || token == "" {
		return nil, domain.ErrUnauthorized
	}
	var claims supabaseClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrUnauthorized
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, domain.ErrUnauthorized
	}
	return &adapter.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// bearerToken extracts the token from the Authorization header, or "" when
// the header is absent or malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, domain.ErrUnauthorized, "missing bearer token")
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			s.writeError(w, domain.ErrUnauthorized, "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerIdentity returns the identity stored by requireAuth, or nil on
// routes that are not behind it.
func callerIdentity(r *http.Request) *adapter.Identity {
	id, _ := r.Context().Value(identityKey).(*adapter.Identity)
	return id
}

// optionalIdentity resolves the bearer token when one is present without
// failing the request when it is not. Routes with a query-param fallback
// use this.
func (s *Server) optionalIdentity(r *http.Request) *adapter.Identity {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	id, err := s.verifier.Verify(token)
	if err != nil {
		return nil
	}
	return id
}
