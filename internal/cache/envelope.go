package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/nehonix/xypriss/internal/util/log"
)

// envelope is the structured record wrapping an encrypted value:
// algorithm, nonce, ciphertext, auth tag, salt, timestamp, version.
type envelope struct {
	Algorithm  string `json:"algorithm"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"authTag"`
	Salt       []byte `json:"salt"`
	Timestamp  int64  `json:"timestamp"`
	Version    int    `json:"version"`
}

const envelopeVersion = 1

// maxAge and clockSkewTolerance bound envelope.Timestamp validity.
const (
	envelopeMaxAge             = 24 * time.Hour
	envelopeClockSkewTolerance = 60 * time.Second
)

const compressionThreshold = 1024 // bytes; values smaller than this are never compressed

// wrap serializes, optionally compresses, and optionally encrypts value
// into the bytes stored in a CacheBackend.
func (c *SecureCache) wrap(value []byte, compress, encrypt bool) ([]byte, error) {
	payload := value
	compressed := false
	if compress && len(payload) >= compressionThreshold {
		payload = snappy.Encode(nil, payload)
		compressed = true
	}

	if !encrypt {
		return marshalFrame(frame{Compressed: compressed, Encrypted: false, Payload: payload}), nil
	}

	nonce, err := c.provider.RandomBytes(12)
	if err != nil {
		return nil, &CacheSerializationError{Err: err}
	}
	salt, err := c.provider.RandomBytes(16)
	if err != nil {
		return nil, &CacheSerializationError{Err: err}
	}
	sealed, err := c.provider.AEADEncrypt(c.masterKey, nonce, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: encrypting entry: %w", err)
	}

	env := envelope{
		Algorithm:  "AES-256-GCM",
		IV:         nonce,
		Ciphertext: sealed.Ciphertext,
		AuthTag:    sealed.AuthTag,
		Salt:       salt,
		Timestamp:  time.Now().Unix(),
		Version:    envelopeVersion,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, &CacheSerializationError{Err: err}
	}
	return marshalFrame(frame{Compressed: compressed, Encrypted: true, Payload: envBytes}), nil
}

// unwrap is the inverse of wrap: decrypt (if needed), decompress (if
// needed), and return the original bytes.
func (c *SecureCache) unwrap(raw []byte) ([]byte, error) {
	f, err := unmarshalFrame(raw)
	if err != nil {
		return nil, err
	}

	payload := f.Payload
	if f.Encrypted {
		pt, err := c.openEnvelope(payload)
		if err != nil {
			// Backward compatibility during an encryption rollout: when
			// enabled, a failed open falls through to the raw bytes with a
			// one-time warning instead of erroring. Off by default.
			if !c.compatFallback {
				return nil, err
			}
			log.WarnOnce("envelope-compat-fallback", "envelope open failed, treating stored bytes as unencrypted", log.Pairs{"error": err.Error()})
		} else {
			payload = pt
		}
	}

	if f.Compressed {
		pt, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, &CacheSerializationError{Err: err}
		}
		payload = pt
	}
	return payload, nil
}

// openEnvelope validates and decrypts one envelope's bytes.
func (c *SecureCache) openEnvelope(raw []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &CacheSerializationError{Err: err}
	}
	now := time.Now()
	ts := time.Unix(env.Timestamp, 0)
	if ts.Before(now.Add(-envelopeMaxAge)) || ts.After(now.Add(envelopeClockSkewTolerance)) {
		return nil, &CacheSerializationError{Err: fmt.Errorf("cache: envelope timestamp %s outside validity window", ts)}
	}
	return c.provider.AEADDecrypt(c.masterKey, env.IV, env.Ciphertext, env.AuthTag, nil)
}

// frame is the outer encoding flag record kept alongside the entry's
// payload.
type frame struct {
	Compressed bool
	Encrypted  bool
	Payload    []byte
}

// marshalFrame/unmarshalFrame use a tiny fixed-header binary encoding
// (1 flag byte followed by the raw payload) rather than JSON, since every
// stored value is already an opaque byte sequence by this point. The actual
// msgp-encoded payloads live one layer up: model.HTTPDocument values cached
// by the ultra-fast path (internal/dispatch, app/admin.go) arrive here
// already serialized, and this frame just carries their bytes alongside the
// compression/encryption flags.
func marshalFrame(f frame) []byte {
	flags := byte(0)
	if f.Compressed {
		flags |= 1
	}
	if f.Encrypted {
		flags |= 2
	}
	out := make([]byte, 1, 1+len(f.Payload))
	out[0] = flags
	out = append(out, f.Payload...)
	return out
}

func unmarshalFrame(raw []byte) (frame, error) {
	if len(raw) < 1 {
		return frame{}, &CacheSerializationError{Err: fmt.Errorf("empty cache frame")}
	}
	flags := raw[0]
	return frame{
		Compressed: flags&1 != 0,
		Encrypted:  flags&2 != 0,
		Payload:    raw[1:],
	}, nil
}
