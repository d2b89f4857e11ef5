package api

import (
	"net/http"
	"strconv"
	"time"

	"custody-platform/internal/auth"
	"custody-platform/internal/database"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================================
// SETTLEMENT HANDLERS
// ============================================================================

type accrueRequest struct {
	Profit string `json:"profit" binding:"required"`
}

// handleAccrue records a custody fee accrual from a profit event. Losses
// carry no fee, so a negative profit is treated as zero.
func (s *Server) handleAccrue(c *gin.Context) {
	var req accrueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "profit is required")
		return
	}

	profit, err := decimal.NewFromString(req.Profit)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "profit must be a decimal number")
		return
	}
	if profit.IsNegative() {
		profit = decimal.Zero
	}

	breakdown, err := s.engine.Accrue(c.Request.Context(), auth.AccountID(c), profit)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, breakdown)
}

// handleSettle runs one settlement attempt for the authenticated account.
// The outcome is returned in the record; PENDING_NOT_DUE and
// INSUFFICIENT_BALANCE are not errors.
func (s *Server) handleSettle(c *gin.Context) {
	record, err := s.engine.Settle(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, record)
}

// handleGetSettlementHistory returns past settlement records for the account
func (s *Server) handleGetSettlementHistory(c *gin.Context) {
	from, to, ok := s.parseTimeWindow(c)
	if !ok {
		return
	}
	limit := parseLimit(c, 50)

	records, err := s.repo.GetSettlementRecords(c.Request.Context(), auth.AccountID(c), from, to, limit)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// ============================================================================
// LEDGER HANDLERS
// ============================================================================

// handleGetLedgerHistory returns ledger entries for the account, newest
// first, optionally filtered by time window and entry kind
func (s *Server) handleGetLedgerHistory(c *gin.Context) {
	from, to, ok := s.parseTimeWindow(c)
	if !ok {
		return
	}

	q := database.LedgerQuery{
		AccountID: auth.AccountID(c),
		From:      from,
		To:        to,
		Limit:     parseLimit(c, 100),
	}

	if kind := c.Query("kind"); kind != "" {
		q.Kinds = []database.EntryKind{database.EntryKind(kind)}
	}

	entries, err := s.repo.GetLedgerEntries(c.Request.Context(), q)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// parseTimeWindow parses optional RFC3339 start/end query parameters. A zero
// time leaves that side of the window unbounded.
func (s *Server) parseTimeWindow(c *gin.Context) (time.Time, time.Time, bool) {
	var from, to time.Time

	if v := c.Query("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "start must be an RFC3339 timestamp")
			return from, to, false
		}
		from = parsed
	}

	if v := c.Query("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "end must be an RFC3339 timestamp")
			return from, to, false
		}
		to = parsed
	}

	return from, to, true
}

func parseLimit(c *gin.Context, defaultLimit int) int {
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultLimit
}
