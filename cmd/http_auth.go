package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	domainncr "ncrflow/internal/domain/ncr"
)

// staffClaims is what the auth collaborator signs: sub is the user id and
// role one of ADMIN, PM, QA, MEMBER.
type staffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type actorCtxKey struct{}

func actorFromContext(ctx context.Context) (domainncr.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(domainncr.Actor)
	return actor, ok
}

func parseStaffToken(secret []byte, raw string) (domainncr.Actor, error) {
	claims := &staffClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domainncr.Actor{}, err
	}
	if !token.Valid {
		return domainncr.Actor{}, errors.New("invalid token")
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domainncr.Actor{}, errors.New("token subject is required")
	}
	role, err := domainncr.ParseRole(claims.Role)
	if err != nil {
		return domainncr.Actor{}, err
	}
	return domainncr.Actor{UserID: subject, Role: role}, nil
}

// requireStaff rejects requests without a valid bearer token and stores the
// resulting actor in the request context.
func requireStaff(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				writeAPIError(w, http.StatusUnauthorized, "UnauthorizedError", "authorization header required")
				return
			}
			scheme, raw, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				writeAPIError(w, http.StatusUnauthorized, "UnauthorizedError", "invalid authorization header format")
				return
			}

			actor, err := parseStaffToken(secret, strings.TrimSpace(raw))
			if err != nil {
				writeAPIError(w, http.StatusUnauthorized, "UnauthorizedError", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), actorCtxKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
