package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneStillMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("approve: %w", Clone(ErrClassFull, "class JAVA-01 is full"))

	assert.True(t, errors.Is(err, ErrClassFull))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "class JAVA-01 is full", FromError(err).Message)
	assert.Equal(t, "class is full", ErrClassFull.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("boom")
	appErr := FromError(cause)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, FromError(nil))
}

func TestWithDetailsCopies(t *testing.T) {
	detailed := ErrValidation.WithDetails(map[string]string{"ClassID": "required"})

	assert.Equal(t, "required", detailed.Details["ClassID"])
	assert.Nil(t, ErrValidation.Details)
}
