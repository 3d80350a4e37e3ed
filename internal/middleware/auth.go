package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type subjectKey struct{}

// Authenticate accepts either the shared API key (X-API-Key or Bearer) or an
// HS256 bearer JWT signed with jwtSecret. An empty apiKey or jwtSecret
// disables that scheme; with both empty every request is rejected.
func Authenticate(apiKey, jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				key := extractAPIKey(r)
				if key != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					ctx := context.WithValue(r.Context(), subjectKey{}, "api-key")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			if jwtSecret != "" {
				if sub, ok := verifyJWT(extractBearer(r), jwtSecret); ok {
					ctx := context.WithValue(r.Context(), subjectKey{}, sub)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			writeUnauthorized(w, r)
		})
	}
}

// Subject returns the authenticated caller: the JWT "sub" claim, or "api-key".
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

func verifyJWT(raw, secret string) (string, bool) {
	if raw == "" {
		return "", false
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

func extractAPIKey(r *http.Request) string {
	if s := r.Header.Get("X-API-Key"); s != "" {
		return s
	}
	return extractBearer(r)
}

func extractBearer(r *http.Request) string {
	const prefix = "Bearer "
	if s := r.Header.Get("Authorization"); strings.HasPrefix(s, prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":       "UNAUTHORIZED",
			"message":    "missing or invalid credentials",
			"request_id": GetRequestID(r.Context()),
		},
	})
}
