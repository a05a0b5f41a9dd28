package handlers

import (
	"net/http"

	"github.com/ArowuTest/uptime-rewards-backend/internal/middleware"
	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// UserHandler handles user directory HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// Register handles POST /users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req models.UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wallet := req.WalletAddress
	if tokenWallet := c.GetString(middleware.WalletAddressKey); tokenWallet != "" {
		wallet = tokenWallet
	}

	user, err := h.userService.Register(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetUserByID handles GET /users/id/:id
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetUserByWalletAddress handles GET /users/wallet/:walletAddress
func (h *UserHandler) GetUserByWalletAddress(c *gin.Context) {
	user, err := h.userService.GetUserByWalletAddress(c.Request.Context(), c.Param("walletAddress"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
