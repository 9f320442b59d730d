package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	AnonymousClient = "anonymous"
	TokenClient     = "token"
)

var ErrEmptyToken = errors.New("token must not be empty")

// HashToken returns the bcrypt hash to configure as STATUS_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// RequireToken checks the bearer token against a bcrypt hash. With an empty
// hash every request passes as AnonymousClient.
func RequireToken(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := AnonymousClient
			if hash != "" {
				token := bearerToken(r)
				if token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
					logger.WithFields(map[string]interface{}{
						"path":   r.URL.Path,
						"remote": r.RemoteAddr,
					}).Warn("status API request rejected")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				client = TokenClient
			}
			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
