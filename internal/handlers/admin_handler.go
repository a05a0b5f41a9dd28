package handlers

import (
	"net/http"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

// AdminHandler exposes manual triggers for the periodic jobs and bulk imports
type AdminHandler struct {
	sessions *services.SessionService
	importer *utils.CSVImporter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sessions *services.SessionService, importer *utils.CSVImporter) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
		importer: importer,
	}
}

// RunAccrual handles POST /admin/accrual/run
func (h *AdminHandler) RunAccrual(c *gin.Context) {
	summary, err := h.sessions.AccrueActiveSessions(c.Request.Context())
	if err != nil {
		// Partial runs still report what they did.
		slog.Error("Manual accrual run had failures", "error", err, "failed", summary.Failed)
		c.JSON(http.StatusMultiStatus, gin.H{"summary": summary, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// SweepSessions handles POST /admin/sessions/sweep
func (h *AdminHandler) SweepSessions(c *gin.Context) {
	summary, err := h.sessions.CloseStaleSessions(c.Request.Context())
	if err != nil {
		slog.Error("Manual stale sweep had failures", "error", err, "failed", summary.Failed)
		c.JSON(http.StatusMultiStatus, gin.H{"summary": summary, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ImportCredits handles POST /admin/ledger/import with a multipart "file" field
func (h *AdminHandler) ImportCredits(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
		return
	}
	defer file.Close()

	batch := c.DefaultPostForm("batch", fileHeader.Filename)
	result, err := h.importer.Import(c.Request.Context(), file, batch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
