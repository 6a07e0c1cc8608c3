package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// operatorClaims is the single claim this surface checks for — there is no
// per-user authorization model here, just "is this caller the node
// operator" (spec.md §4.7 "a node-operator surface, not a public RPC").
type operatorClaims struct {
	jwt.RegisteredClaims
	Operator bool `json:"operator"`
}

// RequireOperator wraps next with a bearer-token check: the request must
// carry "Authorization: Bearer <jwt>", signed with secret, with the
// operator claim set true. Both the GraphQL and WebSocket surfaces sit
// behind this (spec.md §4.7).
func RequireOperator(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tokenString, ok := bearerToken(req)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims := &operatorClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid || !claims.Operator {
			http.Error(w, "invalid or unauthorized token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func bearerToken(req *http.Request) (string, bool) {
	h := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
