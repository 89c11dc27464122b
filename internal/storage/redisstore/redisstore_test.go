package redisstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError_Is(t *testing.T) {
	var err error = &NotFoundError{ID: "42"}
	assert.ErrorIs(t, err, &NotFoundError{})
	assert.EqualError(t, err, "not found: 42")
	assert.False(t, errors.Is(err, errors.New("other")))
}
