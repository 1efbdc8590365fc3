package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBackupCodes(t *testing.T) {
	t.Run("should generate the requested number of unique codes", func(t *testing.T) {
		codes, err := GenerateBackupCodes(10, 8)

		require.NoError(t, err)
		assert.Len(t, codes, 10)

		seen := map[string]bool{}
		for _, code := range codes {
			assert.False(t, seen[code], "duplicate code %s", code)
			seen[code] = true
			assert.True(t, IsBackupCodeShape(code, 8), code)
		}
	})

	t.Run("should only use the unambiguous alphabet", func(t *testing.T) {
		codes, err := GenerateBackupCodes(20, 10)

		require.NoError(t, err)
		for _, code := range codes {
			assert.NotContains(t, code, "0")
			assert.NotContains(t, code, "O")
			assert.NotContains(t, code, "1")
			assert.NotContains(t, code, "I")
		}
	})
}

func TestBackupCodeFormatting(t *testing.T) {
	t.Run("should split long codes for display", func(t *testing.T) {
		assert.Equal(t, "ABCD-EFGH", FormatBackupCode("ABCDEFGH"))
		assert.Equal(t, "ABCDEF", FormatBackupCode("ABCDEF"))
	})

	t.Run("should canonicalize user input", func(t *testing.T) {
		assert.Equal(t, "ABCDEFGH", CanonicalizeBackupCode(" abcd-efgh "))
		assert.Equal(t, "ABCDEFGH", CanonicalizeBackupCode(FormatBackupCode("ABCDEFGH")))
	})

	t.Run("should reject codes outside the alphabet", func(t *testing.T) {
		assert.False(t, IsBackupCodeShape("ABCD0FGH", 8))
		assert.False(t, IsBackupCodeShape("ABCDEFG", 8))
	})
}

func TestHashBackupCode(t *testing.T) {
	salt, err := NewBackupCodeSalt()
	require.NoError(t, err)

	t.Run("should be deterministic for the same salt", func(t *testing.T) {
		assert.Equal(t, HashBackupCode(salt, "ABCDEFGH"), HashBackupCode(salt, "ABCDEFGH"))
	})

	t.Run("should differ across salts", func(t *testing.T) {
		other, err := NewBackupCodeSalt()
		require.NoError(t, err)

		assert.NotEqual(t, HashBackupCode(salt, "ABCDEFGH"), HashBackupCode(other, "ABCDEFGH"))
	})

	t.Run("should never contain the plaintext", func(t *testing.T) {
		hash := HashBackupCode(salt, "ABCDEFGH")

		assert.False(t, strings.Contains(strings.ToUpper(hash), "ABCDEFGH"))
		assert.Len(t, hash, 64)
	})
}

func TestCreateHash(t *testing.T) {
	t.Run("should verify the original code only", func(t *testing.T) {
		hash, err := CreateHash("123456")
		require.NoError(t, err)

		ok, err := CompareHash("123456", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = CompareHash("654321", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)

	require.NoError(t, err)
	assert.True(t, IsNumericCode(code, 6))
	assert.False(t, IsNumericCode(code, 8))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("123456", "123456"))
	assert.False(t, ConstantTimeEqual("123456", "123457"))
	assert.False(t, ConstantTimeEqual("123456", "12345"))
}
