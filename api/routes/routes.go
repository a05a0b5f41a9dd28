package routes

import (
	"net/http"

	"github.com/ArowuTest/uptime-rewards-backend/internal/config"
	"github.com/ArowuTest/uptime-rewards-backend/internal/handlers"
	"github.com/ArowuTest/uptime-rewards-backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

// HandlerDependencies holds the handlers the router mounts
type HandlerDependencies struct {
	SessionHandler    *handlers.SessionHandler
	LedgerHandler     *handlers.LedgerHandler
	UserHandler       *handlers.UserHandler
	AdminHandler      *handlers.AdminHandler
	NodeSocketHandler *handlers.NodeSocketHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	// Node routes
	node := api.Group("")
	node.Use(middleware.NodeAuthMiddleware(cfg))
	{
		session := node.Group("/session")
		{
			session.POST("/heartbeat", deps.SessionHandler.Heartbeat)
			session.POST("/status", deps.SessionHandler.Status)
			session.POST("/stop", deps.SessionHandler.Stop)
			session.GET("/ws", deps.NodeSocketHandler.Serve)
		}

		node.POST("/users/register", deps.UserHandler.Register)
	}

	// Internal routes
	internal := api.Group("")
	internal.Use(middleware.InternalKeyMiddleware(cfg))
	{
		ledger := internal.Group("/ledger")
		{
			ledger.POST("/credit", deps.LedgerHandler.Credit)
			ledger.GET("/:userId/balance", deps.LedgerHandler.GetBalance)
			ledger.GET("/:userId/entries", deps.LedgerHandler.ListEntries)
			ledger.GET("/:userId/verify", deps.LedgerHandler.Verify)
		}

		users := internal.Group("/users")
		{
			users.GET("/id/:id", deps.UserHandler.GetUserByID)
			users.GET("/wallet/:walletAddress", deps.UserHandler.GetUserByWalletAddress)
		}

		admin := internal.Group("/admin")
		{
			admin.POST("/accrual/run", deps.AdminHandler.RunAccrual)
			admin.POST("/sessions/sweep", deps.AdminHandler.SweepSessions)
			admin.GET("/sessions/:sessionId/entries", deps.LedgerHandler.SessionEntries)
			admin.POST("/ledger/import", deps.AdminHandler.ImportCredits)
		}
	}

	return router
}
