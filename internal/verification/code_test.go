package verification

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/Veraticus/gigproof/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02, 0x03}))
	require.NoError(t, err)
	assert.Equal(t, "GIG-DEADBEEF00010203", code)

	_, err = GenerateCode(bytes.NewReader([]byte{0x01}))
	assert.Error(t, err)

	_, err = GenerateCode(iotest.ErrReader(errors.New("entropy exhausted")))
	assert.Error(t, err)
}

func TestRandomCodes(t *testing.T) {
	gen := RandomCodes()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := gen()
		require.NoError(t, err)
		assert.Regexp(t, `^GIG-[0-9A-F]{16}$`, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "GIG-ABCDEF0123456789", NormalizeCode("  gig-abcdef0123456789\n"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestHashers(t *testing.T) {
	in := HashInput{
		Code:     "GIG-DEADBEEF00010203",
		UserID:   "u1",
		IssuedAt: time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC),
		Figures:  model.IncomeFigures{Total90Days: 200, MonthlyAverage: 66.67, WeeklyAverage: 15.38},
	}

	hmacHasher, err := NewHMACHasher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	tests := []struct {
		hasher Hasher
		name   string
		scheme string
	}{
		{name: "sha256", hasher: SHA256Hasher{}, scheme: SchemeSHA256},
		{name: "hmac", hasher: hmacHasher, scheme: SchemeHMACSHA256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := tt.hasher.Hash(in)
			assert.Len(t, hash, 64)
			assert.Equal(t, tt.scheme, tt.hasher.Scheme())
			assert.Equal(t, hash, tt.hasher.Hash(in))
			assert.True(t, Matches(tt.hasher, in, hash))

			tampered := in
			tampered.Figures.Total90Days = 2000
			assert.False(t, Matches(tt.hasher, tampered, hash))
			assert.NotEqual(t, hash, tt.hasher.Hash(tampered))
		})
	}

	t.Run("hmac binds user and secret", func(t *testing.T) {
		other := in
		other.UserID = "u2"
		assert.NotEqual(t, hmacHasher.Hash(in), hmacHasher.Hash(other))

		otherKey, err := NewHMACHasher("fedcba9876543210fedcba9876543210")
		require.NoError(t, err)
		assert.NotEqual(t, hmacHasher.Hash(in), otherKey.Hash(in))
	})

	t.Run("short secret rejected", func(t *testing.T) {
		_, err := NewHMACHasher("too-short")
		assert.Error(t, err)
	})
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.LockoutDuration = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.DailyLimit = -1
	assert.Error(t, p.Validate())
}
