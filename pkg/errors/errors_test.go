package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"wrapped app error", fmt.Errorf("outer: %w", New(ErrUnauthorized, http.StatusUnauthorized, "no")), http.StatusUnauthorized},
		{"duplicate", fmt.Errorf("insert: %w", ErrDuplicateTitle), http.StatusConflict},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"validation", ErrValidation, http.StatusUnprocessableEntity},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(ErrDuplicateTitle, http.StatusConflict, "duplicate title").
		WithDetail("existing_id", "abc")

	assert.Equal(t, "abc", err.Details["existing_id"])
	assert.ErrorIs(t, err, ErrDuplicateTitle)
	assert.Equal(t, "asset with this title already exists: duplicate title", err.Error())
}
