package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdProviderRoundTrip(t *testing.T) {
	p := NewStdProvider()
	key, err := p.RandomBytes(AEADKeySize)
	require.NoError(t, err)
	nonce, err := p.RandomBytes(12)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")
	aad := []byte("associated")

	sealed, err := p.AEADEncrypt(key, nonce, plaintext, aad)
	require.NoError(t, err)

	pt, err := p.AEADDecrypt(key, nonce, sealed.Ciphertext, sealed.AuthTag, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestStdProviderTagMismatch(t *testing.T) {
	p := NewStdProvider()
	key, _ := p.RandomBytes(AEADKeySize)
	nonce, _ := p.RandomBytes(12)
	sealed, err := p.AEADEncrypt(key, nonce, []byte("data"), nil)
	require.NoError(t, err)

	tampered := append([]byte{}, sealed.AuthTag...)
	tampered[0] ^= 0xFF

	_, err = p.AEADDecrypt(key, nonce, sealed.Ciphertext, tampered, nil)
	require.Error(t, err)
	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestConstantTimeEqual(t *testing.T) {
	p := NewStdProvider()
	assert.True(t, p.ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, p.ConstantTimeEqual([]byte("abc"), []byte("ab")))
	assert.False(t, p.ConstantTimeEqual([]byte("abc"), []byte("abd")))
}

func TestKDFMinIterations(t *testing.T) {
	p := NewStdProvider()
	key, err := p.KDF([]byte("password"), []byte("salt12345678"), MinKDFIterations, 32)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestStubProviderRoundTrip(t *testing.T) {
	p := &StubProvider{}
	key := make([]byte, AEADKeySize)
	nonce := make([]byte, 12)
	sealed, err := p.AEADEncrypt(key, nonce, []byte("hello"), []byte("ctx"))
	require.NoError(t, err)
	pt, err := p.AEADDecrypt(key, nonce, sealed.Ciphertext, sealed.AuthTag, []byte("ctx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)
}

func TestStubProviderAuthFailure(t *testing.T) {
	p := &StubProvider{}
	key := make([]byte, AEADKeySize)
	nonce := make([]byte, 12)
	sealed, err := p.AEADEncrypt(key, nonce, []byte("hello"), nil)
	require.NoError(t, err)
	_, err = p.AEADDecrypt(key, nonce, sealed.Ciphertext, []byte("wrong-tag-wrong!"), nil)
	require.Error(t, err)
}
