package handlers

import (
	"net/http"
	"strconv"

	"github.com/ArowuTest/uptime-rewards-backend/internal/models"
	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/ArowuTest/uptime-rewards-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 500
)

// LedgerHandler handles internal ledger HTTP requests
type LedgerHandler struct {
	ledger *services.LedgerService
	retry  utils.Backoff
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledger *services.LedgerService, retry utils.Backoff) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		retry:  retry,
	}
}

// Credit handles POST /ledger/credit. Node uptime credits are reserved for sessions.
func (h *LedgerHandler) Credit(c *gin.Context) {
	var req models.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var entry *models.LedgerEntry
	err := retryUnavailable(c, h.retry, func() error {
		var err error
		entry, err = h.ledger.CreditExternal(c.Request.Context(), services.CreditInput{
			UserID:         req.UserID,
			Amount:         req.Amount,
			Source:         req.Source,
			SessionID:      req.SessionID,
			IdempotencyKey: req.IdempotencyKey,
		})
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if entry == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetBalance handles GET /ledger/:userId/balance
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	var balance *models.UserBalance
	err := retryUnavailable(c, h.retry, func() error {
		var err error
		balance, err = h.ledger.GetBalance(c.Request.Context(), c.Param("userId"))
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// ListEntries handles GET /ledger/:userId/entries
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEntriesLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}

	var entries []*models.LedgerEntry
	err = retryUnavailable(c, h.retry, func() error {
		var err error
		entries, err = h.ledger.ListEntries(c.Request.Context(), c.Param("userId"), limit)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Verify handles GET /ledger/:userId/verify
func (h *LedgerHandler) Verify(c *gin.Context) {
	var report *services.BalanceReport
	err := retryUnavailable(c, h.retry, func() error {
		var err error
		report, err = h.ledger.VerifyBalance(c.Request.Context(), c.Param("userId"))
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// SessionEntries handles GET /admin/sessions/:sessionId/entries
func (h *LedgerHandler) SessionEntries(c *gin.Context) {
	var entries []*models.LedgerEntry
	err := retryUnavailable(c, h.retry, func() error {
		var err error
		entries, err = h.ledger.EntriesForSession(c.Request.Context(), c.Param("sessionId"))
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries), "totalPoints": total})
}
