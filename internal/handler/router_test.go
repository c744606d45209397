package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"buzzchat/internal/configs"
)

func TestOriginPolicy(t *testing.T) {
	dev := newOriginPolicy(&configs.AppConfig{Environment: "development"})
	assert.True(t, dev.allows("http://anything.test"))

	prod := newOriginPolicy(&configs.AppConfig{
		Environment:    "production",
		AllowedOrigins: []string{"https://buzz.example.com"},
	})
	assert.True(t, prod.allows("https://buzz.example.com"))
	assert.False(t, prod.allows("https://evil.example.com"))
	assert.False(t, prod.allows(""))
}

func TestCORSPreflightAllowsProofHeader(t *testing.T) {
	h := corsHandler(&configs.AppConfig{
		Environment:    "production",
		AllowedOrigins: []string{"https://buzz.example.com"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Browsers send the requested header names lowercased.
	preflight := func(origin, headers string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/register", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", headers)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for _, headers := range []string{"x-pow-token", "content-type,x-pow-token"} {
		ok := preflight("https://buzz.example.com", headers)
		assert.Equal(t, "https://buzz.example.com", ok.Header().Get("Access-Control-Allow-Origin"), headers)
	}

	denied := preflight("https://evil.example.com", "x-pow-token")
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}
