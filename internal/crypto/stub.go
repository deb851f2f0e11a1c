package crypto

// StubProvider is a deterministic, non-secure Provider used by tests so
// core logic can be exercised without depending on real randomness.
type StubProvider struct {
	// FixedRandom, when non-nil, is returned (truncated/repeated to the
	// requested length) by RandomBytes instead of real random bytes.
	FixedRandom []byte
}

func (p *StubProvider) aeadXOR(key, nonce, data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)] ^ nonce[i%len(nonce)]
	}
	return out
}

// AEADEncrypt performs a reversible XOR "encryption" with a fixed-size tag
// derived from HMAC-SHA256, sufficient to exercise round-trip and
// tag-mismatch code paths deterministically.
func (p *StubProvider) AEADEncrypt(key, nonce, plaintext, associatedData []byte) (Sealed, error) {
	if len(key) != AEADKeySize {
		return Sealed{}, &CryptoError{Op: "aead", Err: ErrStubKeySize}
	}
	ct := p.aeadXOR(key, nonce, plaintext)
	tag := HMACSHA256(key, append(append(append([]byte{}, nonce...), ct...), associatedData...))[:16]
	return Sealed{Ciphertext: ct, AuthTag: tag}, nil
}

// AEADDecrypt is the inverse of AEADEncrypt.
func (p *StubProvider) AEADDecrypt(key, nonce, ciphertext, authTag, associatedData []byte) ([]byte, error) {
	expected := HMACSHA256(key, append(append(append([]byte{}, nonce...), ciphertext...), associatedData...))[:16]
	if !p.ConstantTimeEqual(expected, authTag) {
		return nil, &AuthError{Op: "aeadDecrypt"}
	}
	return p.aeadXOR(key, nonce, ciphertext), nil
}

// KDF returns a deterministic HMAC-based stretch of password+salt.
func (p *StubProvider) KDF(password, salt []byte, iterations, outLen int) ([]byte, error) {
	out := make([]byte, 0, outLen)
	block := append(append([]byte{}, password...), salt...)
	for len(out) < outLen {
		block = HMACSHA256(salt, block)
		out = append(out, block...)
	}
	return out[:outLen], nil
}

// RandomBytes returns FixedRandom (cycled) if set, else a simple
// non-cryptographic counter sequence — deterministic by design.
func (p *StubProvider) RandomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if len(p.FixedRandom) > 0 {
		for i := range out {
			out[i] = p.FixedRandom[i%len(p.FixedRandom)]
		}
		return out, nil
	}
	for i := range out {
		out[i] = byte(i)
	}
	return out, nil
}

// ConstantTimeEqual mirrors StdProvider's semantics exactly, since
// constant-time comparison has no meaningful "stub" shortcut.
func (p *StubProvider) ConstantTimeEqual(a, b []byte) bool {
	return (&StdProvider{}).ConstantTimeEqual(a, b)
}

// ErrStubKeySize reports an incorrectly-sized key to the stub provider.
var ErrStubKeySize = stubKeySizeError{}

type stubKeySizeError struct{}

func (stubKeySizeError) Error() string { return "stub: key must be 32 bytes" }

var _ Provider = (*StdProvider)(nil)
var _ Provider = (*StubProvider)(nil)
