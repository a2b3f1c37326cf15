package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"r53gate/internal/metrics"
	"r53gate/internal/model"
)

// Verifier decodes a bearer token into the identity it was issued for.
type Verifier interface {
	Verify(token string) (model.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// decoded identity in the request context.
func RequireAuth(v Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				metrics.RecordAuthFailure("missing_token")
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized: No token provided")
				return
			}

			id, err := v.Verify(token)
			if err != nil {
				metrics.RecordAuthFailure("invalid_token")
				logger.Debug("token rejected", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// extractBearerToken gets token from "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
