package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// EnvelopeVersion is the current envelope format version.
const EnvelopeVersion = 1

// gcmTagSize is the AES-GCM authentication tag length in bytes.
const gcmTagSize = 16

// ErrDecryptionFailed indicates AEAD tag verification failed. Decryption
// fails closed: no partial plaintext is ever returned. A failed decryption
// is fatal for that token and must not trigger PSP failover.
var ErrDecryptionFailed = errors.New("envelope decryption failed")

// Envelope is the AEAD envelope stored for a vaulted card. AAD binds the
// ciphertext to its owning token record so an envelope cannot be replayed
// against a different record.
type Envelope struct {
	Version    int    `json:"version"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
	KeyID      string `json:"key_id,omitempty"`
}

// Cipher encrypts and decrypts card envelopes with AES-256-GCM. The data
// key and the fingerprint key are both derived from the master secret via
// HKDF-SHA256, so the master secret itself is never used directly.
type Cipher struct {
	aead           cipher.AEAD
	fingerprintKey []byte
	keyID          string
}

// NewCipher derives key material from the master secret and returns a
// ready cipher. keyID labels the derivation for future rotation.
func NewCipher(masterSecret []byte, keyID string) (*Cipher, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("master secret is required")
	}
	if keyID == "" {
		keyID = "k1"
	}

	dataKey, err := deriveKey(masterSecret, "cardroute/vault/data/"+keyID)
	if err != nil {
		return nil, fmt.Errorf("deriving data key: %w", err)
	}
	fpKey, err := deriveKey(masterSecret, "cardroute/vault/fingerprint")
	if err != nil {
		return nil, fmt.Errorf("deriving fingerprint key: %w", err)
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	return &Cipher{
		aead:           aead,
		fingerprintKey: fpKey,
		keyID:          keyID,
	}, nil
}

// Encrypt seals plaintext into a versioned envelope with a random nonce.
// aad, when non-empty, is authenticated but not encrypted; the same bytes
// must be presented to Decrypt.
func (c *Cipher) Encrypt(plaintext, aad []byte) (*Envelope, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, aad)
	tagStart := len(sealed) - gcmTagSize

	return &Envelope{
		Version:    EnvelopeVersion,
		IV:         iv,
		Ciphertext: sealed[:tagStart],
		AuthTag:    sealed[tagStart:],
		KeyID:      c.keyID,
	}, nil
}

// Decrypt opens an envelope. Any mismatch in version, nonce, tag, or aad
// returns ErrDecryptionFailed; plaintext is never partially interpreted.
func (c *Cipher) Decrypt(env *Envelope, aad []byte) ([]byte, error) {
	if env == nil || env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version", ErrDecryptionFailed)
	}
	if len(env.IV) != c.aead.NonceSize() || len(env.AuthTag) != gcmTagSize {
		return nil, fmt.Errorf("%w: malformed envelope", ErrDecryptionFailed)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := c.aead.Open(nil, env.IV, sealed, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Fingerprint computes the stable card fingerprint: an HMAC-SHA256 of the
// PAN under the derived fingerprint key. The same PAN always produces the
// same fingerprint, enabling dedup without storing the PAN.
func (c *Cipher) Fingerprint(pan string) string {
	mac := hmac.New(sha256.New, c.fingerprintKey)
	mac.Write([]byte(pan))
	return hex.EncodeToString(mac.Sum(nil))
}

func deriveKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
