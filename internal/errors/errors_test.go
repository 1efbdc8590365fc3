package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	t.Run("should expose the kind as the error message", func(t *testing.T) {
		err := NewAPIError(404, ErrUserNotFound)

		assert.Equal(t, "USER_NOT_FOUND", err.Error())
		assert.Equal(t, 404, err.Code)
	})

	t.Run("should keep the cause reachable through errors.Is", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := StoreUnavailable(cause)

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("should extract the kind from a wrapped error", func(t *testing.T) {
		err := fmt.Errorf("setup: %w", NewAPIError(400, ErrInvalidPhoneFormat))

		assert.Equal(t, ErrInvalidPhoneFormat, KindOf(err))
		assert.True(t, Is(err, ErrInvalidPhoneFormat))
	})
}

func TestIsHardFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"storage", StoreUnavailable(errors.New("down")), true},
		{"encryption", EncryptionFailure(errors.New("bad key")), true},
		{"corrupt secret", Wrap(500, ErrInvalidSecretFormat, errors.New("base32")), true},
		{"foreign error", errors.New("boom"), true},
		{"invalid code", NewAPIError(401, ErrInvalidCode), false},
		{"validation", NewAPIError(400, ErrInvalidEmailFormat), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHardFailure(tt.err))
		})
	}
}
