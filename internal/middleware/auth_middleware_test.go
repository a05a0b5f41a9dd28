package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const wallet = "0x4444444444444444444444444444444444444444"

func init() {
	gin.SetMode(gin.TestMode)
}

// serve runs one request through mw and reports the status and the wallet the
// handler saw.
func serve(mw gin.HandlerFunc, headers map[string]string) (int, string) {
	router := gin.New()
	var seen string
	router.GET("/", mw, func(c *gin.Context) {
		seen = c.GetString(WalletAddressKey)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code, seen
}

func TestNodeAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "secret", TTL: time.Hour}}
	token, err := jwt.NewNodeTokenService(cfg).Issue(wallet)
	require.NoError(t, err)
	expiredCfg := &config.Config{JWT: config.JWTConfig{Secret: "secret", TTL: -time.Hour}}
	expired, err := jwt.NewNodeTokenService(expiredCfg).Issue(wallet)
	require.NoError(t, err)

	required := &config.Config{JWT: config.JWTConfig{Secret: "secret", TTL: time.Hour, Required: true}}
	disabled := &config.Config{JWT: config.JWTConfig{Required: true}}

	tests := []struct {
		name       string
		cfg        *config.Config
		header     string
		wantStatus int
		wantWallet string
	}{
		{"valid token", cfg, "Bearer " + token, http.StatusOK, wallet},
		{"optional token missing", cfg, "", http.StatusOK, ""},
		{"required token missing", required, "", http.StatusUnauthorized, ""},
		{"wrong scheme", cfg, "Basic abc", http.StatusUnauthorized, ""},
		{"expired", cfg, "Bearer " + expired, http.StatusUnauthorized, ""},
		{"invalid", cfg, "Bearer abc", http.StatusUnauthorized, ""},
		{"no secret configured", disabled, "Bearer abc", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			status, seen := serve(NodeAuthMiddleware(tt.cfg), headers)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantWallet, seen)
		})
	}
}

func TestInternalKeyMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("internal"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{Internal: config.InternalConfig{KeyHash: string(hash)}}

	status, _ := serve(InternalKeyMiddleware(cfg), map[string]string{InternalKeyHeader: "internal"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = serve(InternalKeyMiddleware(cfg), nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = serve(InternalKeyMiddleware(cfg), map[string]string{InternalKeyHeader: "guess"})
	assert.Equal(t, http.StatusForbidden, status)

	// Without a configured hash nothing gets in.
	status, _ = serve(InternalKeyMiddleware(&config.Config{}), map[string]string{InternalKeyHeader: "internal"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
