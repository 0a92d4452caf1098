package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReception Role = "reception"
	RoleTherapist Role = "therapist"
	RoleKiosk     Role = "kiosk"
)

// Claims carries the staff role. For therapists the subject is the therapist id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "staffClaims"

// RequireRole accepts HMAC-signed bearer tokens whose role is one of roles.
func RequireRole(secret string, roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeErrorMessage(w, http.StatusUnauthorized, "staff auth disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeErrorMessage(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeErrorMessage(w, http.StatusForbidden, "role not permitted")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}
