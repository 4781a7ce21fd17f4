package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestNewHasher_CostBounds(t *testing.T) {
	tests := []struct {
		name    string
		cost    int
		wantErr bool
	}{
		{name: "min", cost: bcrypt.MinCost},
		{name: "default", cost: DefaultCost},
		{name: "below min", cost: bcrypt.MinCost - 1, wantErr: true},
		{name: "above max", cost: bcrypt.MaxCost + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHasher(tt.cost)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cost, h.Cost())
		})
	}
}

func TestHasher_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	secrets := []string{
		"Password1",
		"",
		"ünïcødé-pässwörd",
		strings.Repeat("x", 200),
	}
	for _, secret := range secrets {
		hash, err := h.Hash(secret)
		require.NoError(t, err)
		assert.NotEqual(t, secret, hash)
		assert.True(t, h.Verify(secret, hash), "secret of length %d should verify", len(secret))
	}
}

func TestHasher_RejectsOtherSecret(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("CorrectHorse1")
	require.NoError(t, err)

	assert.False(t, h.Verify("correcthorse1", hash))
	assert.False(t, h.Verify("CorrectHorse1 ", hash))
}

func TestHasher_LongSecretsAreNotTruncated(t *testing.T) {
	h := newTestHasher(t)

	// bcrypt alone ignores everything past byte 72.
	base := strings.Repeat("a", 80)
	hash, err := h.Hash(base + "1")
	require.NoError(t, err)

	assert.True(t, h.Verify(base+"1", hash))
	assert.False(t, h.Verify(base+"2", hash))
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := newTestHasher(t)

	first, err := h.Hash("same-secret")
	require.NoError(t, err)
	second, err := h.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHasher_MalformedHash(t *testing.T) {
	h := newTestHasher(t)

	for _, hash := range []string{"", "not-a-hash", "$2a$04$short", "$2a$99$" + strings.Repeat("a", 53)} {
		assert.NotPanics(t, func() {
			assert.False(t, h.Verify("secret", hash))
		})
	}
}

func TestPackageHelpers(t *testing.T) {
	hash, err := HashPassword("Helper123")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("Helper123", hash))
	assert.False(t, VerifyPassword("helper123", hash))
}
