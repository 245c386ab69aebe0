package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const driverIDKey contextKey = "driverID"

// AuthMiddleware validates bearer JWT tokens and puts the driver id on the
// request context. Token issuance lives in the auth service; this side only
// verifies the shared-secret HMAC signature.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(parts[1])
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenInvalidClaims
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			driverID, err := extractDriverID(claims)
			if err != nil {
				http.Error(w, "driver id not found", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), driverIDKey, driverID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractDriverID(claims jwt.MapClaims) (int64, error) {
	switch v := claims["driver_id"].(type) {
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return id, nil
	default:
		return 0, fmt.Errorf("driver_id not present")
	}
}

// DriverIDFromContext retrieves the authenticated driver id from request context.
func DriverIDFromContext(ctx context.Context) (int64, bool) {
	val := ctx.Value(driverIDKey)
	if val == nil {
		return 0, false
	}
	id, ok := val.(int64)
	return id, ok
}
