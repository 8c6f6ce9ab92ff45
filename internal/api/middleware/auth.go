package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Houssam-Ibnchakroune/TP03-Web-Marketing-CRM/internal/api/auth"
)

// JWTAuth requires a valid pipeline-scoped bearer token and stores its claims
// in the request context.
func JWTAuth(jwtManager *auth.JWTManager, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondUnauthorized(w, "missing authorization header")
				return
			}

			tokenString, err := auth.ExtractTokenFromBearer(authHeader)
			if err != nil {
				respondUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := jwtManager.ValidateToken(tokenString)
			if err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected trigger token")
				respondUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), claims)))
		})
	}
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="pipeline"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
