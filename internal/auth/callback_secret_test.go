package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCallbackSecret(t *testing.T) {
	hash, err := HashCallbackSecret("gateway-shared-secret")

	require.NoError(t, err)
	assert.NotEqual(t, "gateway-shared-secret", hash)
	assert.True(t, len(hash) >= 60, "bcrypt hash should be at least 60 chars")
}

func TestHashCallbackSecret_TooShort(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"15 characters", "123456789012345"},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashCallbackSecret(tt.secret)
			assert.ErrorIs(t, err, ErrSecretTooShort)
			assert.Empty(t, hash)
		})
	}
}

func TestCheckCallbackSecret(t *testing.T) {
	hash, err := HashCallbackSecret("gateway-shared-secret")
	require.NoError(t, err)

	assert.True(t, CheckCallbackSecret("gateway-shared-secret", hash))
	assert.False(t, CheckCallbackSecret("gateway-shared-secreT", hash))
	assert.False(t, CheckCallbackSecret("", hash))
	assert.False(t, CheckCallbackSecret("gateway-shared-secret", ""))
	assert.False(t, CheckCallbackSecret("gateway-shared-secret", "not-a-bcrypt-hash"))
}
