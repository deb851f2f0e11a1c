package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/model"
)

// JWTAuth validates a Bearer token from the Authorization header against
// cfg.Secret (the "security.authentication.jwt" configuration key) and
// attaches its claims to res.Locals["jwt"] for downstream handlers. A
// missing/invalid/expired token short-circuits the chain with a 401.
func JWTAuth(cfg config.JWTConfig) model.MiddlewareFunc {
	return func(req *model.Request, res *model.Response, next model.Next) {
		header := req.Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" || tokenStr == header {
			unauthorized(res, "missing bearer token")
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			unauthorized(res, "invalid or expired token")
			return
		}

		claims, _ := token.Claims.(jwt.MapClaims)
		res.Locals["jwt"] = claims
		next(nil)
	}
}

func unauthorized(res *model.Response, reason string) {
	res.WriteHeader(http.StatusUnauthorized)
	res.Header.Set("Content-Type", "application/json")
	body, _ := json.Marshal(map[string]string{"error": reason})
	_, _ = res.Write(body)
}
