package crypto_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/Kaikei/common/crypto"
)

func newSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := crypto.NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealer_Roundtrip(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal([]byte("signing-key-bytes"), []byte("wallet-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "signing-key-bytes")

	plain, err := s.Open(sealed, []byte("wallet-1"))
	require.NoError(t, err)
	assert.Equal(t, "signing-key-bytes", string(plain))
}

func TestSealer_WrongAssociatedDataFails(t *testing.T) {
	s := newSealer(t)
	sealed, err := s.Seal([]byte("k"), []byte("wallet-1"))
	require.NoError(t, err)

	_, err = s.Open(sealed, []byte("wallet-2"))
	assert.Error(t, err)
}

func TestSealer_NonDeterministic(t *testing.T) {
	s := newSealer(t)
	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_TooShort(t *testing.T) {
	_, err := newSealer(t).Open([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, crypto.ErrCiphertextTooShort)
}

func TestNewSealer_InvalidKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		_, err := crypto.NewSealer(make([]byte, n))
		assert.ErrorIs(t, err, crypto.ErrInvalidKeySize, "size %d", n)
	}
}

func TestParseMasterKey(t *testing.T) {
	key, err := crypto.ParseMasterKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, key, crypto.KeySize)

	_, err = crypto.ParseMasterKey("")
	assert.Error(t, err)
	_, err = crypto.ParseMasterKey("zz")
	assert.Error(t, err)
	_, err = crypto.ParseMasterKey("abcd")
	assert.Error(t, err)
}
