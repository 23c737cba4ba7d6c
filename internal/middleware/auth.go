package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"finflow/internal/auth"
)

var (
	ErrMissingToken    = errors.New("missing token")
	ErrMalformedHeader = errors.New("invalid authorization header")
)

type contextKey string

const userIDKey contextKey = "user_id"

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// BearerToken reads the token from the Authorization header. When allowQuery
// is set a "token" query parameter is accepted as well, since browsers cannot
// set headers on a websocket upgrade.
func BearerToken(r *http.Request, allowQuery bool) (string, error) {
	if allowQuery {
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			return token, nil
		}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMalformedHeader
	}
	return strings.TrimSpace(token), nil
}

// Authenticate resolves the caller's user id from the request token.
func Authenticate(r *http.Request, secret string, allowQuery bool) (string, error) {
	token, err := BearerToken(r, allowQuery)
	if err != nil {
		return "", err
	}
	claims, err := auth.ParseToken(secret, token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(r, secret, false)
			if err != nil {
				Unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// Unauthorized writes a 401 in the API's {"error": code} shape.
func Unauthorized(w http.ResponseWriter, err error) {
	code := "invalid_token"
	switch {
	case errors.Is(err, ErrMissingToken):
		code = "missing_token"
	case errors.Is(err, ErrMalformedHeader):
		code = "invalid_authorization_header"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
