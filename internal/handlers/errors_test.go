package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad: %w", services.ErrValidation), http.StatusBadRequest},
		{services.ErrClockSkew, http.StatusBadRequest},
		{fmt.Errorf("heartbeat: %w", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("stop: %w after 5 attempts", services.ErrConcurrencyConflict), http.StatusConflict},
		{fmt.Errorf("%w: balance 1, debit 2", services.ErrInsufficientBalance), http.StatusUnprocessableEntity},
		{fmt.Errorf("ledger credit: %w: timeout", services.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}
