// Package crypto defines the CryptoProvider capability boundary consumed
// by the SecureCache (internal/cache) and ConsoleInterceptor
// (internal/console) packages: the interface the core depends on, plus a
// standard-library-backed implementation and a deterministic stub for
// tests.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// MinKDFIterations is the minimum iteration count enforced for
// password-derivation contexts.
const MinKDFIterations = 100000

// AEADKeySize is the required key length for aeadEncrypt/aeadDecrypt.
const AEADKeySize = 32

// CryptoError wraps failures in the AEAD/KDF/random-bytes primitives that
// are not specifically authentication failures.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// AuthError indicates an AEAD authentication tag mismatch on decrypt.
type AuthError struct{ Op string }

func (e *AuthError) Error() string { return fmt.Sprintf("crypto: %s: authentication failed", e.Op) }

// Sealed is the result of an AEAD encryption operation.
type Sealed struct {
	Ciphertext []byte
	AuthTag    []byte
}

// Provider is the abstract cryptographic capability surface XyPriss's core
// depends on. AES-256-GCM is the primary algorithm; ChaCha20-Poly1305 is
// used only when explicitly selected (StdProvider.Fallback), not as an
// automatic switch when GCM setup fails.
type Provider interface {
	AEADEncrypt(key, nonce, plaintext, associatedData []byte) (Sealed, error)
	AEADDecrypt(key, nonce, ciphertext, authTag, associatedData []byte) ([]byte, error)
	KDF(password, salt []byte, iterations, outLen int) ([]byte, error)
	RandomBytes(n int) ([]byte, error)
	ConstantTimeEqual(a, b []byte) bool
}

// StdProvider is the production Provider backed by crypto/aes,
// golang.org/x/crypto/chacha20poly1305, golang.org/x/crypto/pbkdf2, and
// crypto/rand.
type StdProvider struct {
	// Fallback selects ChaCha20-Poly1305 instead of AES-256-GCM.
	Fallback bool
}

// NewStdProvider returns the default production CryptoProvider.
func NewStdProvider() *StdProvider { return &StdProvider{} }

func (p *StdProvider) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, &CryptoError{Op: "aead", Err: fmt.Errorf("key must be %d bytes, got %d", AEADKeySize, len(key))}
	}
	if p.Fallback {
		return chacha20poly1305.New(key)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "aead", Err: err}
	}
	return cipher.NewGCM(block)
}

// AEADEncrypt seals plaintext under key/nonce with associatedData bound in.
func (p *StdProvider) AEADEncrypt(key, nonce, plaintext, associatedData []byte) (Sealed, error) {
	a, err := p.aead(key)
	if err != nil {
		return Sealed{}, err
	}
	if len(nonce) != a.NonceSize() {
		return Sealed{}, &CryptoError{Op: "aeadEncrypt", Err: fmt.Errorf("nonce must be %d bytes, got %d", a.NonceSize(), len(nonce))}
	}
	sealed := a.Seal(nil, nonce, plaintext, associatedData)
	tagSize := a.Overhead()
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	return Sealed{Ciphertext: ct, AuthTag: tag}, nil
}

// AEADDecrypt is the inverse of AEADEncrypt; it fails with *AuthError on
// tag mismatch.
func (p *StdProvider) AEADDecrypt(key, nonce, ciphertext, authTag, associatedData []byte) ([]byte, error) {
	a, err := p.aead(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != a.NonceSize() {
		return nil, &CryptoError{Op: "aeadDecrypt", Err: fmt.Errorf("nonce must be %d bytes, got %d", a.NonceSize(), len(nonce))}
	}
	combined := make([]byte, 0, len(ciphertext)+len(authTag))
	combined = append(combined, ciphertext...)
	combined = append(combined, authTag...)
	pt, err := a.Open(nil, nonce, combined, associatedData)
	if err != nil {
		return nil, &AuthError{Op: "aeadDecrypt"}
	}
	return pt, nil
}

// KDF derives a key from password and salt using PBKDF2-HMAC-SHA256.
// Callers deriving keys for password-based contexts must supply at least
// MinKDFIterations; the caller is responsible for enforcing that floor
// where it applies (this function does not reject a caller-supplied lower
// count for non-password contexts,).
func (p *StdProvider) KDF(password, salt []byte, iterations, outLen int) ([]byte, error) {
	if iterations <= 0 || outLen <= 0 {
		return nil, &CryptoError{Op: "kdf", Err: errors.New("iterations and outLen must be positive")}
	}
	return pbkdf2.Key(password, salt, iterations, outLen, sha256.New), nil
}

// RandomBytes returns n cryptographically secure random bytes.
func (p *StdProvider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, &CryptoError{Op: "randomBytes", Err: err}
	}
	return b, nil
}

// ConstantTimeEqual returns false immediately on length mismatch;
// otherwise performs a constant-time comparison.
func (p *StdProvider) ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// HMACSHA256 is exposed for callers that need a keyed digest rather than a
// full AEAD envelope; StubProvider derives its tags and KDF output with it.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
