package api

import (
	"errors"
	"net/http"

	"custody-platform/internal/accounts"
	"custody-platform/internal/auth"
	"custody-platform/internal/database"
	"custody-platform/internal/funds"
	"custody-platform/internal/gift"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ============================================================================
// ACCOUNT HANDLERS
// ============================================================================

type registerRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	ReferrerID string `json:"referrer_id"`
}

// handleRegister opens a new custodial account. The referrer chain is frozen
// at this point and never changes afterwards.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := s.accounts.Register(c.Request.Context(), req.Email, req.Password, req.ReferrerID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"account_id":         account.ID,
			"email":              account.Email,
			"gift_balance":       account.GiftBalance,
			"settlement_cadence": account.SettlementCadence,
			"referrer_chain":     account.ReferrerChain,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin authenticates an account and issues a JWT access token
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "email and password are required")
		return
	}

	tokens, err := s.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, tokens)
}

// handleGetAccount returns the authenticated account's profile
func (s *Server) handleGetAccount(c *gin.Context) {
	account, err := s.accounts.Get(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, gin.H{
		"account_id":           account.ID,
		"email":                account.Email,
		"status":               account.Status,
		"settlement_cadence":   account.SettlementCadence,
		"last_settlement_time": account.LastSettlementTime,
		"service_start_time":   account.ServiceStartTime,
		"referrer_chain":       account.ReferrerChain,
	})
}

// handleCloseAccount closes the authenticated account. Refused while the
// account still holds funds.
func (s *Server) handleCloseAccount(c *gin.Context) {
	accountID := auth.AccountID(c)

	if err := s.accounts.Close(c.Request.Context(), accountID); err != nil {
		s.writeServiceError(c, err)
		return
	}

	if s.hub != nil {
		s.hub.DisconnectAccount(accountID)
	}

	successResponse(c, gin.H{"account_id": accountID, "closed": true})
}

// handleGetBalances returns all balance fields for the authenticated account
func (s *Server) handleGetBalances(c *gin.Context) {
	info, err := s.funds.BalanceInfo(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, info)
}

// ============================================================================
// FUND HANDLERS
// ============================================================================

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	amount, ok := s.bindAmount(c)
	if !ok {
		return
	}
	accountID := auth.AccountID(c)

	if err := s.funds.Deposit(c.Request.Context(), accountID, amount); err != nil {
		s.writeServiceError(c, err)
		return
	}

	info, err := s.funds.BalanceInfo(c.Request.Context(), accountID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, info)
}

func (s *Server) handleWithdraw(c *gin.Context) {
	amount, ok := s.bindAmount(c)
	if !ok {
		return
	}
	accountID := auth.AccountID(c)

	if err := s.funds.Withdraw(c.Request.Context(), accountID, amount); err != nil {
		s.writeServiceError(c, err)
		return
	}

	info, err := s.funds.BalanceInfo(c.Request.Context(), accountID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, info)
}

// bindAmount parses the amount field of the request body as a decimal.
// Amounts travel as strings to avoid float precision loss in transit.
func (s *Server) bindAmount(c *gin.Context) (decimal.Decimal, bool) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "amount is required")
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "amount must be a decimal number")
		return decimal.Zero, false
	}

	return amount, true
}

// ============================================================================
// GIFT HANDLERS
// ============================================================================

func (s *Server) handleGetGiftBalance(c *gin.Context) {
	balance, err := s.gifts.Balance(c.Request.Context(), auth.AccountID(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	successResponse(c, gin.H{"gift_balance": balance})
}

// ============================================================================
// WEBSOCKET HANDLER
// ============================================================================

func (s *Server) handleWebSocket(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request, auth.AccountID(c))
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

// writeServiceError maps service errors onto HTTP status codes
func (s *Server) writeServiceError(c *gin.Context, err error) {
	var authErr auth.AuthError
	if errors.As(err, &authErr) {
		status := http.StatusUnauthorized
		if authErr.Code == auth.ErrWeakPassword.Code {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   authErr.Code,
			"message": authErr.Message,
		})
		return
	}

	switch {
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, accounts.ErrReferrerNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrDuplicateEmail),
		errors.Is(err, database.ErrAccountNotEmpty):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, funds.ErrInsufficientBalance):
		errorResponse(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, funds.ErrInvalidAmount),
		errors.Is(err, gift.ErrInvalidAmount),
		errors.Is(err, accounts.ErrInvalidEmail):
		errorResponse(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
