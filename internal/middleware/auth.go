package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/basket/internal/auth"
	"github.com/dukerupert/basket/internal/remote"
)

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(remote.Error{Code: code, Message: msg})
}

// RequireToken checks the bearer token and reads the acting user from the
// X-Basket-User header. An empty token disables the token check; the user
// header is always required.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					writeError(w, http.StatusUnauthorized, remote.CodePermissionDenied, "invalid token")
					return
				}
			}

			userID := strings.TrimSpace(r.Header.Get(remote.UserHeader))
			if userID == "" {
				writeError(w, http.StatusBadRequest, remote.CodeInvalidArgument, "missing "+remote.UserHeader+" header")
				return
			}

			ctx := auth.WithCaller(r.Context(), auth.Caller{UserID: userID, Remote: RealIP(r)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ByUser keys rate limits on the authenticated user, falling back to the
// client address.
func ByUser(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + RealIP(r)
}
