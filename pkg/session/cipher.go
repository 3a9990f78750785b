package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// ErrInvalidPayload is returned for values that were not produced by the Encrypter or were
// produced for another cookie name.
var ErrInvalidPayload = errors.New("invalid encrypted payload")

// Encrypter seals cookie values with AES-256-GCM. The cookie name is bound as additional
// data so a value cannot be replayed under another name.
type Encrypter struct {
	aead cipher.AEAD
}

// NewEncrypter uses a 32 byte key as is and derives one with SHA-256 from anything else.
func NewEncrypter(key []byte) (*Encrypter, error) {
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encrypter{aead: gcm}, nil
}

// Encrypt returns nonce+ciphertext as unpadded URL-safe base64.
func (e *Encrypter) Encrypt(plaintext, name string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encrypter) Decrypt(value, name string) (string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", ErrInvalidPayload
	}
	nonceSize := e.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", ErrInvalidPayload
	}
	plain, err := e.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], []byte(name))
	if err != nil {
		return "", ErrInvalidPayload
	}
	return string(plain), nil
}
