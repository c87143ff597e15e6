package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"accessledger/internal/domain"
)

// Auth returns a middleware that authenticates via JWT bearer token first,
// then API key. Requests that fail both get 401. An empty jwtSecret
// disables bearer-token auth; a nil apiKeys repository disables API keys.
func Auth(jwtSecret []byte, apiKeys domain.APIKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try JWT Bearer token
			if auth := r.Header.Get("Authorization"); len(jwtSecret) > 0 && strings.HasPrefix(auth, "Bearer ") {
				tokenStr := strings.TrimPrefix(auth, "Bearer ")
				token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
					return jwtSecret, nil
				}, jwt.WithValidMethods([]string{"HS256"}))

				if err == nil && token.Valid {
					if claims, ok := token.Claims.(jwt.MapClaims); ok {
						if sub, ok := claims["sub"].(string); ok && sub != "" {
							isAdmin, _ := claims["admin"].(bool)
							ctx := domain.WithIdentity(r.Context(), domain.ContextIdentity{Name: sub, IsAdmin: isAdmin})
							next.ServeHTTP(w, r.WithContext(ctx))
							return
						}
					}
				}
			}

			// Try API key
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && apiKeys != nil {
				hash := sha256.Sum256([]byte(apiKey))
				key, err := apiKeys.GetByHash(r.Context(), hex.EncodeToString(hash[:]))
				if err == nil && !key.Expired(time.Now()) {
					ctx := domain.WithIdentity(r.Context(), domain.ContextIdentity{Name: key.Subject, IsAdmin: key.IsAdmin})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    401,
				"message": "unauthorized: provide a valid JWT Bearer token or API key",
			})
		})
	}
}
