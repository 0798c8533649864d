package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Unwraps(t *testing.T) {
	err := NewValidationError("category", "not in closed enum")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "category")

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "category", ve.Field)
}

func TestRelationCycleError_Unwraps(t *testing.T) {
	err := &RelationCycleError{SourceID: "a", TargetID: "b", Type: RelationVersionPrev}

	assert.True(t, errors.Is(err, ErrRelationCycle))
	assert.Contains(t, err.Error(), "version_prev")
}

func TestWrappedSentinelsSurvive(t *testing.T) {
	err := fmt.Errorf("get document: %w", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
}
