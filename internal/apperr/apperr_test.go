package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	sentinel := BadRequest("advance exceeds client total")
	wrapped := fmt.Errorf("trip 42: %w", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.True(t, errors.Is(wrapped, BadRequest("advance exceeds client total")))
	assert.False(t, errors.Is(wrapped, NotFound("advance exceeds client total")))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", BadRequest("x"), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("ctx: %w", NotFound("trip not found")), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"internal", Internal("failed", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestIsOperational(t *testing.T) {
	assert.True(t, IsOperational(Conflict("email already exists")))
	assert.False(t, IsOperational(Internal("failed to save trip", errors.New("timeout"))))
	assert.False(t, IsOperational(errors.New("raw")))
}

func TestError_Message(t *testing.T) {
	err := Internal("failed to save trip", errors.New("timeout"))
	assert.Equal(t, "failed to save trip: timeout", err.Error())
	assert.Equal(t, "trip not found", NotFound("trip not found").Error())
}
