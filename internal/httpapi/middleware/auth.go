package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type Keys struct {
	Public []string
	Admin  []string
}

// Role is the access level of an authenticated request.
type Role string

const (
	RoleNone   Role = ""
	RolePublic Role = "public"
	RoleAdmin  Role = "admin"
)

type roleKey struct{}

// RoleFrom returns the role stored by RequireAny or RequireAdmin.
func RoleFrom(ctx context.Context) Role {
	r, _ := ctx.Value(roleKey{}).(Role)
	return r
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	found := false
	for _, k := range set {
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			found = true
		}
	}
	return found
}

func (k Keys) roleOf(given string) Role {
	switch {
	case hasKey(given, k.Admin):
		return RoleAdmin
	case hasKey(given, k.Public):
		return RolePublic
	default:
		return RoleNone
	}
}

// RequireAny allows requests that present either a public or admin key.
// With no keys configured every request passes (local dev).
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Public) > 0 || len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleAdmin
			if enabled {
				role = keys.roleOf(readAuth(r))
				if role == RoleNone {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}

// RequireAdmin only permits admin keys: 401 without a key, 403 with a
// non-admin one. With no admin keys configured every request passes.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Admin) > 0
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := readAuth(r)
			switch keys.roleOf(given) {
			case RoleAdmin:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, RoleAdmin)))
			case RoleNone:
				if given == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, http.StatusForbidden, "forbidden")
			default:
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
