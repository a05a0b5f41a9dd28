package handlers

import (
	"net/http"

	"github.com/ArowuTest/uptime-rewards-backend/internal/middleware"
	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// SessionHandler handles node session HTTP requests
type SessionHandler struct {
	sessions *services.SessionService
	users    *services.UserService
	retry    utils.Backoff
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions *services.SessionService, users *services.UserService, retry utils.Backoff) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		users:    users,
		retry:    retry,
	}
}

// Heartbeat handles POST /session/heartbeat
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identified := req.UserID != "" || req.WalletAddress != "" || c.GetString(middleware.WalletAddressKey) != ""
	if !identified && req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, walletAddress or sessionId is required"})
		return
	}

	var session *models.NodeSession
	err := retryUnavailable(c, h.retry, func() error {
		var userID string
		if identified {
			var err error
			userID, err = resolveUser(c, h.users, req.UserID, req.WalletAddress, true)
			if err != nil {
				return err
			}
		}

		var err error
		if req.SessionID != "" {
			session, err = h.sessions.HeartbeatAs(c.Request.Context(), userID, req.SessionID)
		} else {
			session, err = h.sessions.StartOrHeartbeat(c.Request.Context(), userID, deviceKey(c, req.DeviceKey))
		}
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.HeartbeatResponse{
		SessionID:       session.ID,
		LastHeartbeatAt: session.LastHeartbeatAt,
	})
}

// Status handles POST /session/status
func (h *SessionHandler) Status(c *gin.Context) {
	var req models.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var status *services.SessionStatus
	err := retryUnavailable(c, h.retry, func() error {
		userID, err := resolveUser(c, h.users, req.UserID, req.WalletAddress, false)
		if err != nil {
			return err
		}
		status, err = h.sessions.Status(c.Request.Context(), userID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse(status))
}

// Stop handles POST /session/stop
func (h *SessionHandler) Stop(c *gin.Context) {
	var req models.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var result *services.StopResult
	err := retryUnavailable(c, h.retry, func() error {
		userID, err := resolveUser(c, h.users, req.UserID, req.WalletAddress, false)
		if err != nil {
			return err
		}
		result, err = h.sessions.Stop(c.Request.Context(), userID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StopResponse{
		PointsEarned: result.PointsEarned,
		NewBalance:   result.NewBalance,
	})
}

func statusResponse(status *services.SessionStatus) models.StatusResponse {
	resp := models.StatusResponse{IsActive: status.IsActive}
	if status.Session == nil {
		return resp
	}
	startedAt := status.Session.StartedAt
	resp.SessionID = status.Session.ID
	resp.StartedAt = &startedAt
	resp.UptimeSecondsInSession = status.UptimeSeconds
	resp.PointsEarnedInSession = status.Session.PointsEarnedInSession
	return resp
}

// resolveUser names the caller. A verified token's wallet wins over the body; a body
// userId that disagrees with the token is rejected as not found.
func resolveUser(c *gin.Context, users *services.UserService, userID, walletAddress string, register bool) (string, error) {
	tokenWallet := c.GetString(middleware.WalletAddressKey)
	if tokenWallet == "" {
		return users.Resolve(c.Request.Context(), userID, walletAddress, register)
	}

	resolved, err := users.Resolve(c.Request.Context(), "", tokenWallet, register)
	if err != nil {
		return "", err
	}
	if userID != "" && userID != resolved {
		return "", services.ErrNotFound
	}
	return resolved, nil
}

// deviceKey prefers the client's key and falls back to a request fingerprint
func deviceKey(c *gin.Context, supplied string) string {
	if supplied != "" {
		return supplied
	}
	return utils.DeviceFingerprint(c.ClientIP(), c.Request.UserAgent())
}
