package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-platform/internal/accounts"
	"custody-platform/internal/auth"
	"custody-platform/internal/database"
	"custody-platform/internal/funds"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// TEST: Rate limiter
// ============================================================================

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("/api/funds/withdraw") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("/api/funds/withdraw") {
		t.Error("fourth request within window should be denied")
	}

	// Other endpoints have independent budgets
	if !rl.Allow("/api/funds/deposit") {
		t.Error("different endpoint should not share the budget")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("/health") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("/health") {
		t.Fatal("second request inside window should be denied")
	}

	time.Sleep(30 * time.Millisecond)

	if !rl.Allow("/health") {
		t.Error("request after window expiry should be allowed")
	}
}

// ============================================================================
// TEST: Error mapping
// ============================================================================

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"account not found", database.ErrAccountNotFound, http.StatusNotFound},
		{"referrer not found", accounts.ErrReferrerNotFound, http.StatusNotFound},
		{"duplicate email", database.ErrDuplicateEmail, http.StatusConflict},
		{"account holds funds", database.ErrAccountNotEmpty, http.StatusConflict},
		{"insufficient balance", funds.ErrInsufficientBalance, http.StatusPaymentRequired},
		{"invalid amount", funds.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid email", accounts.ErrInvalidEmail, http.StatusBadRequest},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"weak password", auth.ErrWeakPassword, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	s := &Server{logger: zerolog.Nop()}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

			s.writeServiceError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestWriteServiceError_WrappedError(t *testing.T) {
	s := &Server{logger: zerolog.Nop()}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	wrapped := errors.Join(errors.New("context"), database.ErrAccountNotFound)
	s.writeServiceError(c, wrapped)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ============================================================================
// TEST: Query parsing
// ============================================================================

func TestParseTimeWindow(t *testing.T) {
	s := &Server{logger: zerolog.Nop()}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/api/ledger/history?start=2026-01-01T00:00:00Z&end=2026-02-01T00:00:00Z", nil)

	from, to, ok := s.parseTimeWindow(c)
	if !ok {
		t.Fatal("expected window to parse")
	}
	if from.IsZero() || to.IsZero() {
		t.Error("expected both bounds to be set")
	}
	if !to.After(from) {
		t.Error("to should be after from")
	}
}

func TestParseTimeWindow_Invalid(t *testing.T) {
	s := &Server{logger: zerolog.Nop()}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ledger/history?start=yesterday", nil)

	if _, _, ok := s.parseTimeWindow(c); ok {
		t.Error("expected malformed timestamp to be rejected")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestParseLimit(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ledger/history?limit=25", nil)

	if got := parseLimit(c, 100); got != 25 {
		t.Errorf("limit = %d, want 25", got)
	}

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/api/ledger/history?limit=-1", nil)
	if got := parseLimit(c2, 100); got != 100 {
		t.Errorf("negative limit should fall back to default, got %d", got)
	}
}
