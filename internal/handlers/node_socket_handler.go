package handlers

import (
	"net/http"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"
)

const socketWriteWait = 10 * time.Second

// socketMessage is a frame sent by the node: type is heartbeat or stop
type socketMessage struct {
	Type string `json:"type"`
}

// socketReply is a frame sent to the node
type socketReply struct {
	Type            string     `json:"type"`
	SessionID       string     `json:"sessionId,omitempty"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt,omitempty"`
	PointsEarned    *int64     `json:"pointsEarned,omitempty"`
	NewBalance      *int64     `json:"newBalance,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// NodeSocketHandler keeps a node connected over a WebSocket. Every heartbeat frame
// is a session heartbeat. A socket closed without a stop frame leaves the session
// to the stale sweep.
type NodeSocketHandler struct {
	sessions *services.SessionService
	users    *services.UserService
	upgrader websocket.Upgrader
}

// NewNodeSocketHandler creates a new NodeSocketHandler
func NewNodeSocketHandler(sessions *services.SessionService, users *services.UserService, allowedOrigins []string) *NodeSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}
	return &NodeSocketHandler{
		sessions: sessions,
		users:    users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Native node clients send no Origin header.
				return origin == "" || origins[origin] || origins["*"]
			},
		},
	}
}

// Serve handles GET /session/ws?userId=&walletAddress=&deviceKey=
func (h *NodeSocketHandler) Serve(c *gin.Context) {
	userID, err := resolveUser(c, h.users, c.Query("userId"), c.Query("walletAddress"), true)
	if err != nil {
		respondError(c, err)
		return
	}
	device := deviceKey(c, c.Query("deviceKey"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Warn("WebSocket upgrade failed", "error", err, "userId", userID)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	readWait := h.sessions.Liveness().StaleAfter
	slog.Info("Node socket connected", "userId", userID, "deviceKey", device)

	for {
		if readWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
		}
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Node socket read failed", "error", err, "userId", userID)
			}
			return
		}

		var reply socketReply
		switch msg.Type {
		case "heartbeat":
			session, err := h.sessions.StartOrHeartbeat(ctx, userID, device)
			if err != nil {
				reply = socketReply{Type: "error", Error: err.Error()}
				break
			}
			at := session.LastHeartbeatAt
			reply = socketReply{Type: "session", SessionID: session.ID, LastHeartbeatAt: &at}
		case "stop":
			result, err := h.sessions.Stop(ctx, userID)
			if err != nil {
				reply = socketReply{Type: "error", Error: err.Error()}
				break
			}
			reply = socketReply{Type: "stopped", PointsEarned: &result.PointsEarned, NewBalance: &result.NewBalance}
		default:
			reply = socketReply{Type: "error", Error: "unknown message type " + msg.Type}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("Node socket write failed", "error", err, "userId", userID)
			return
		}
		if reply.Type == "stopped" {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopped"),
				time.Now().Add(socketWriteWait))
			return
		}
	}
}
