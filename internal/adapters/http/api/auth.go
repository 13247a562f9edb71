package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	headerAPIKey        = "X-API-KEY"
	headerAuthorization = "Authorization"
	defaultAudience     = "authenticated"
)

type userIDKey struct{}

// UserID returns the authenticated user id stored on ctx.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// Authenticator verifies HS256 bearer tokens issued by the auth project
// and extracts the caller's user id from the sub claim.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewAuthenticator builds a verifier for tokens issued by projectURL, e.g.
// https://<ref>.supabase.co, whose issuer is https://<ref>.supabase.co/auth/v1.
func NewAuthenticator(secret, projectURL, audience string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: missing jwt secret", ErrAuthConfig)
	}
	issuer, err := issuerFor(projectURL)
	if err != nil {
		return nil, err
	}
	if audience == "" {
		audience = defaultAudience
	}
	return &Authenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(audience),
			jwt.WithIssuer(issuer),
		),
	}, nil
}

// Issuer returns the expected iss claim.
func (a *Authenticator) Issuer() string { return a.issuer }

// Audience returns the expected aud claim.
func (a *Authenticator) Audience() string { return a.audience }

func issuerFor(projectURL string) (string, error) {
	u, err := url.Parse(projectURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: project url %q", ErrAuthConfig, projectURL)
	}
	ref, _, _ := strings.Cut(u.Hostname(), ".")
	if ref == "" {
		return "", fmt.Errorf("%w: project url %q has no project ref", ErrAuthConfig, projectURL)
	}
	return "https://" + ref + ".supabase.co/auth/v1", nil
}

// Authenticate returns the user id carried by the request's bearer token.
// Error messages are safe to show to clients.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get(headerAuthorization)
	if header == "" {
		return "", fmt.Errorf("%w: Not authenticated: Missing Authorization header", ErrUnauthorized)
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: Invalid Authorization header format. Expected 'Bearer token'", ErrUnauthorized)
	}

	var claims jwt.RegisteredClaims
	_, err := a.parser.ParseWithClaims(parts[1], &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: Token has expired.", ErrUnauthorized)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "", fmt.Errorf("%w: Invalid token audience.", ErrUnauthorized)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "", fmt.Errorf("%w: Invalid token issuer.", ErrUnauthorized)
	default:
		return "", fmt.Errorf("%w: Invalid token: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: Invalid token: Missing user ID (sub).", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// requireAPIKey rejects requests without the shared secret.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(headerAPIKey)), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("Unauthorized"))
			return
		}
		next(w, r)
	}
}

// requireUser authenticates the caller and stores the user id on the
// request context.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.logger.Error(r.Context(), "user route hit without an authenticator")
			writeError(w, http.StatusInternalServerError, "internal_error",
				errors.New("Server configuration error for authentication."))
			return
		}
		id, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", clientMessage(err, ErrUnauthorized))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, id)))
	}
}
