package auth

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"medvoice/internal/platform/respond"
)

type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Middleware rejects requests without a valid bearer token and attaches the Identity otherwise.
func Middleware(v TokenVerifier, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				logger.WithError(err).Debug("token rejected")
				respond.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
