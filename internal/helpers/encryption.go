package helpers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const keyIDSize = 4

var (
	ErrKeySize         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrUnknownKey      = errors.New("secret was sealed with an unknown key")
	ErrCiphertextShort = errors.New("ciphertext too short")
)

// SecretCipher encrypts TOTP secrets at rest. Key management lives outside the engine.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	// Stale reports whether ciphertext opens with a retired key and should be sealed again.
	Stale(ciphertext string) bool
}

type keyID [keyIDSize]byte

type sealingKey struct {
	id   keyID
	aead cipher.AEAD
}

// AESCipher seals with AES-256-GCM under the primary key and still opens secrets sealed under
// retired keys, so the primary key can be rotated without a bulk migration.
// Output is base64(key id || nonce || ciphertext); the key id is also the additional data.
type AESCipher struct {
	primary sealingKey
	keys    map[keyID]cipher.AEAD
}

func NewAESCipher(primary string, retired ...string) (*AESCipher, error) {
	c := &AESCipher{keys: make(map[keyID]cipher.AEAD, len(retired)+1)}

	for i, raw := range append([]string{primary}, retired...) {
		key, err := newSealingKey([]byte(raw))
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("primary key: %w", err)
			}
			return nil, fmt.Errorf("retired key %d: %w", i, err)
		}
		if i == 0 {
			c.primary = key
		}
		if _, dup := c.keys[key.id]; !dup {
			c.keys[key.id] = key.aead
		}
	}

	return c, nil
}

func newSealingKey(raw []byte) (sealingKey, error) {
	if len(raw) != 32 {
		return sealingKey{}, ErrKeySize
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return sealingKey{}, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return sealingKey{}, err
	}

	sum := sha256.Sum256(raw)
	var id keyID
	copy(id[:], sum[:keyIDSize])

	return sealingKey{id: id, aead: aead}, nil
}

func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	aead := c.primary.aead
	out := make([]byte, keyIDSize+aead.NonceSize(), keyIDSize+aead.NonceSize()+len(plaintext)+aead.Overhead())
	copy(out, c.primary.id[:])

	nonce := out[keyIDSize:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	out = aead.Seal(out, nonce, []byte(plaintext), c.primary.id[:])
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(data) < keyIDSize {
		return "", ErrCiphertextShort
	}

	var id keyID
	copy(id[:], data[:keyIDSize])
	aead, ok := c.keys[id]
	if !ok {
		return "", ErrUnknownKey
	}

	rest := data[keyIDSize:]
	if len(rest) < aead.NonceSize() {
		return "", ErrCiphertextShort
	}

	nonce, sealed := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, id[:])
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (c *AESCipher) Stale(ciphertext string) bool {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(data) < keyIDSize {
		return false
	}

	var id keyID
	copy(id[:], data[:keyIDSize])
	_, known := c.keys[id]
	return known && id != c.primary.id
}
