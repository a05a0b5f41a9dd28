package routes_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/api/routes"
	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/internal/handlers"
	"github.com/ArowuTest/uptime-rewards-backend/internal/middleware"
	"github.com/ArowuTest/uptime-rewards-backend/internal/repositories/memory"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/ArowuTest/uptime-rewards-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	internalKey = "internal-test-key"
	testWallet  = "0x1111111111111111111111111111111111111111"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router *gin.Engine
	cfg    *config.Config
	clock  *clock
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(internalKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:   config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:      config.JWTConfig{Secret: "test-secret", TTL: time.Hour},
		Internal: config.InternalConfig{KeyHash: string(hash)},
	}
	if mutate != nil {
		mutate(cfg)
	}

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	ledger := services.NewLedgerService(memory.NewLedgerRepository(), time.Second, 5).WithClock(clk.Now)
	users := services.NewUserService(memory.NewUserRepository(), true, time.Second)
	sessions := services.NewSessionService(memory.NewSessionRepository(), ledger, services.SessionConfig{
		RatePerMinute:  12,
		Multiplier:     1,
		StaleAfter:     2 * time.Minute,
		StorageTimeout: time.Second,
		MaxRetries:     5,
		BatchSize:      100,
	}).WithClock(clk.Now)
	backoff := utils.Backoff{MaxAttempts: 2, Initial: time.Millisecond, Max: time.Millisecond}

	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		SessionHandler:    handlers.NewSessionHandler(sessions, users, backoff),
		LedgerHandler:     handlers.NewLedgerHandler(ledger, backoff),
		UserHandler:       handlers.NewUserHandler(users),
		AdminHandler:      handlers.NewAdminHandler(sessions, utils.NewCSVImporter(ledger, users)),
		NodeSocketHandler: handlers.NewNodeSocketHandler(sessions, users, cfg.Server.AllowedOrigins),
	})
	return &testServer{router: router, cfg: cfg, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var internal = map[string]string{middleware.InternalKeyHeader: internalKey}

// register creates a user for wallet and returns its id
func (s *testServer) register(t *testing.T, wallet string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{"walletAddress": wallet}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]string{"walletAddress": testWallet, "deviceKey": "laptop"}

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := decode(t, w)["sessionId"].(string)
	assert.NotEmpty(t, sessionID)

	s.clock.Advance(45 * time.Second)
	w = s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"sessionId": sessionID}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sessionID, decode(t, w)["sessionId"])

	w = s.do(t, http.MethodPost, "/api/v1/session/status", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode(t, w)
	assert.Equal(t, true, status["isActive"])
	assert.Equal(t, sessionID, status["sessionId"])
	assert.Equal(t, float64(45), status["uptimeSecondsInSession"])

	s.clock.Advance(45 * time.Second)
	w = s.do(t, http.MethodPost, "/api/v1/session/stop", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stop := decode(t, w)
	assert.Equal(t, float64(18), stop["pointsEarned"])
	assert.Equal(t, float64(18), stop["newBalance"])

	w = s.do(t, http.MethodPost, "/api/v1/session/status", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status = decode(t, w)
	assert.Equal(t, false, status["isActive"])
	assert.Equal(t, float64(18), status["pointsEarnedInSession"])
}

func TestHeartbeatRequiresIdentity(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"deviceKey": "laptop"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusOfUnknownWallet(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/session/status", map[string]string{"walletAddress": testWallet}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHeartbeatWithUnknownUserID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"userId": "ghost", "deviceKey": "laptop"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/session/stop", map[string]string{"userId": "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestHeartbeatRejectsMalformedWallet(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"walletAddress": "0x12", "deviceKey": "laptop"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeartbeatFallsBackToFingerprint(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]string{"userId": s.register(t, testWallet)}

	first := decode(t, s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, map[string]string{"User-Agent": "node/1.0"}))
	second := decode(t, s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, map[string]string{"User-Agent": "node/1.0"}))
	other := decode(t, s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, map[string]string{"User-Agent": "node/2.0"}))

	assert.Equal(t, first["sessionId"], second["sessionId"])
	assert.NotEqual(t, first["sessionId"], other["sessionId"])
}

func TestNodeToken(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.JWT.Required = true })
	tokens := jwt.NewNodeTokenService(s.cfg)
	token, err := tokens.Issue(testWallet)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"deviceKey": "laptop"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"deviceKey": "laptop"}, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/session/heartbeat", map[string]string{"deviceKey": "laptop"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A body naming another user is refused.
	w = s.do(t, http.MethodPost, "/api/v1/session/stop", map[string]string{"userId": "someone-else"}, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/session/stop", map[string]string{}, auth)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestInternalKeyGuardsLedger(t *testing.T) {
	s := newTestServer(t, nil)
	credit := map[string]any{"userId": "u1", "amount": 10, "source": "task_reward"}

	w := s.do(t, http.MethodPost, "/api/v1/ledger/credit", credit, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit", credit, map[string]string{middleware.InternalKeyHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit", credit, internal)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestLedgerEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": 10, "source": "task_reward", "idempotencyKey": "task:1"}, internal)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry := decode(t, w)
	assert.Equal(t, float64(10), entry["balanceAfter"])

	// Replaying the key returns the same entry.
	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": 10, "source": "task_reward", "idempotencyKey": "task:1"}, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entry["entryId"], decode(t, w)["entryId"])

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": -50, "source": "credits_transfer"}, internal)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": -5, "source": "task_reward"}, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": 0, "source": "task_reward"}, internal)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit", map[string]any{"amount": 5}, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Session payouts cannot be forged from outside.
	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": 100, "source": "node_uptime"}, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/ledger/credit",
		map[string]any{"userId": "u1", "amount": 100, "source": "task_reward", "sessionId": "s1"}, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/ledger/u1/balance", nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), decode(t, w)["pointsBalance"])

	w = s.do(t, http.MethodGet, "/api/v1/ledger/u1/entries?limit=10", nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/v1/ledger/u1/entries?limit=abc", nil, internal)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/ledger/u1/verify", nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["consistent"])
}

func TestAdminTriggers(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]string{"userId": s.register(t, testWallet), "deviceKey": "laptop"}

	w := s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := decode(t, w)["sessionId"].(string)

	s.clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/session/heartbeat", body, nil).Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/accrual/run", nil, internal)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(12), summary["pointsPaid"])

	s.clock.Advance(time.Hour)
	w = s.do(t, http.MethodPost, "/api/v1/admin/sessions/sweep", nil, internal)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary = decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["closed"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/sessions/"+sessionID+"/entries", nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(12), decode(t, w)["totalPoints"])
}

func TestImportCredits(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.register(t, testWallet)
	second := s.register(t, "0x3333333333333333333333333333333333333333")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "rewards.csv")
	require.NoError(t, err)
	rows := "userId,amount,source\n" + first + ",5,task_reward\n" + first + ",abc,task_reward\n" + second + ",7,referral_bonus\n"
	_, err = part.Write([]byte(rows))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	upload := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/ledger/import", bytes.NewReader(buf.Bytes()))
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set(middleware.InternalKeyHeader, internalKey)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode(t, w)
	}

	result := upload()
	assert.Equal(t, float64(3), result["rows"])
	assert.Equal(t, float64(2), result["credited"])
	assert.Equal(t, float64(1), result["failed"])

	// The same file again credits nothing new.
	upload()
	w := s.do(t, http.MethodGet, "/api/v1/ledger/"+first+"/balance", nil, internal)
	assert.Equal(t, float64(5), decode(t, w)["pointsBalance"])
}

func TestNodeSocket(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/session/ws?userId=" + s.register(t, testWallet) + "&deviceKey=laptop"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "session", reply["type"])
	assert.NotEmpty(t, reply["sessionId"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])

	s.clock.Advance(90 * time.Second)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "stop"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "stopped", reply["type"])
	assert.Equal(t, float64(18), reply["pointsEarned"])
}

func TestUserDirectory(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{"walletAddress": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	user := decode(t, w)
	assert.Equal(t, testWallet, user["walletAddress"])

	// Registering again returns the same user.
	w = s.do(t, http.MethodPost, "/api/v1/users/register", map[string]string{"walletAddress": testWallet}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user["id"], decode(t, w)["id"])

	w = s.do(t, http.MethodGet, "/api/v1/users/wallet/"+testWallet, nil, internal)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user["id"], decode(t, w)["id"])

	w = s.do(t, http.MethodGet, "/api/v1/users/id/"+user["id"].(string), nil, internal)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/id/missing", nil, internal)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/id/missing", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
