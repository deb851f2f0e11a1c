package console

import (
	"encoding/hex"
)

// encryptCapture seals cap.Message under the interceptor's master key when
// encryption is enabled, storing the result as a hex string so the
// readable/hash-only display modes never need to carry raw ciphertext
// bytes through logs.
func (ic *Interceptor) encryptCapture(cap *Capture) {
	nonce, err := ic.provider.RandomBytes(12)
	if err != nil {
		return
	}
	sealed, err := ic.provider.AEADEncrypt(ic.masterKey, nonce, []byte(cap.Message), nil)
	if err != nil {
		return
	}
	combined := append(append([]byte{}, nonce...), sealed.Ciphertext...)
	combined = append(combined, sealed.AuthTag...)
	cap.Encrypted = true
	cap.CipherHex = hex.EncodeToString(combined)
}
