package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Token scopes
const (
	// ScopeAdmin grants the merchant payment actions
	ScopeAdmin = "payments:admin"
	// ScopeCheckout is held by the storefront starting checkouts
	ScopeCheckout = "payments:checkout"
)

type contextKey string

const (
	SubjectKey   contextKey = "subject"
	RequestIDKey contextKey = "request_id"
)

// AdminClaims are the claims of a merchant API token. Scope is a
// space-separated list.
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token carries scope
func (c *AdminClaims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// AdminAuth verifies HS256 bearer tokens for the merchant API
type AdminAuth struct {
	secret []byte
	issuer string
	logger *zap.Logger
	now    func() time.Time
}

// NewAdminAuth creates the authenticator
func NewAdminAuth(secret, issuer string, logger *zap.Logger) *AdminAuth {
	return &AdminAuth{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
		now:    time.Now,
	}
}

// IssueToken signs a token for subject with the given scopes
func (a *AdminAuth) IssueToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a raw token
func (a *AdminAuth) Verify(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// RequireScope returns middleware that admits requests whose bearer token carries scope
func (a *AdminAuth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				a.reject(w, r, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}

			claims, err := a.Verify(tokenString)
			if err != nil {
				a.reject(w, r, http.StatusUnauthorized, "invalid token", err)
				return
			}
			if !claims.HasScope(scope) {
				a.reject(w, r, http.StatusForbidden, fmt.Sprintf("missing scope %s", scope), nil)
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *AdminAuth) reject(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("reason", message),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.logger.Warn("Admin request rejected", fields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// SubjectFromContext returns the authenticated token subject
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok
}

// RequestID propagates X-Request-ID, generating one when absent
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id set by RequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
