package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	validation := fmt.Errorf("save step: %w", Invalid("notes", "too long"))
	network := fmt.Errorf("save view: %w", &NetworkError{Op: "create damage points", Status: 500, Detail: "boom"})
	correlation := fmt.Errorf("save view: %w", &CorrelationError{Requested: 2, Returned: 1})

	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(network))
	assert.True(t, IsNetwork(network))
	assert.True(t, IsCorrelation(correlation))
	assert.False(t, IsCorrelation(errors.New("plain")))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "notes: too long", Invalid("notes", "too long").Error())
	assert.Equal(t, "create damage points failed (status 500): boom",
		(&NetworkError{Op: "create damage points", Status: 500, Detail: "boom"}).Error())
	assert.Equal(t, "create response has 1 entries, expected 2",
		(&CorrelationError{Requested: 2, Returned: 1}).Error())
}

func TestNetworkErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{Op: "fetch damage types", Err: cause}
	assert.ErrorIs(t, err, cause)
}
