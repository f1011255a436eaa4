package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"title":   "is required",
		"urgency": "must be one of: low medium high critical",
	}}

	assert.Equal(t, "validation failed: title is required; urgency must be one of: low medium high critical", err.Error())
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrValidation))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrClaimConflict))
	assert.True(t, IsConflict(fmt.Errorf("x: %w", ErrNotAwaitingReview)))
	assert.True(t, IsConflict(ErrNotClaimant))
	assert.False(t, IsConflict(ErrForbidden))
	assert.False(t, IsConflict(nil))
}
