package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func echoClient() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _ := GetClientFromContext(r.Context())
		_, _ = w.Write([]byte(client))
	})
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = HashToken("  ")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestRequireToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := RequireToken(string(hash))(echoClient())

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "Basic s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
		{"lowercase scheme", "bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/portfolio", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("expected status %d, got %d", tc.code, rr.Code)
			}
			if tc.code == http.StatusOK {
				assert.Equal(t, TokenClient, rr.Body.String())
			}
		})
	}
}

func TestRequireTokenDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireToken("")(echoClient()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/portfolio", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, AnonymousClient, rr.Body.String())
}
