package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "intake/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

func TestHashToken(t *testing.T) {
	h := HashToken("token-a")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("token-a"))
	assert.NotEqual(t, h, HashToken("token-b"))
	assert.True(t, EqualHash(h, HashToken("token-a")))
	assert.False(t, EqualHash(h, HashToken("token-b")))
}

func TestNewCode(t *testing.T) {
	for range 50 {
		code, err := NewCode()
		require.NoError(t, err)
		require.Len(t, code, CodeDigits)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
	}
}

func TestCodeHashing(t *testing.T) {
	hash, err := HashCode("042117", bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, VerifyCode("042117", hash))
	assert.True(t, dErrors.HasCode(VerifyCode("042118", hash), dErrors.CodeMismatch))

	_, err = HashCode("", bcrypt.MinCost)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = VerifyCode("042117", "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.False(t, dErrors.HasCode(err, dErrors.CodeMismatch))
}
