// internal/vault/crypto.go
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

// Ciphertext layout: version byte 0x01 | nonce | GCM ciphertext+tag.
const ctVersion = 0x01

// ErrIntegrity means the ciphertext failed GCM authentication: wrong key,
// corruption, or tampering. Always fail closed.
var ErrIntegrity = errors.New("ciphertext failed authentication")

type cipherBox struct {
	gcm cipher.AEAD
}

// newCipherBox derives the AES-256 key as sha256(material).
func newCipherBox(material []byte) (*cipherBox, error) {
	if len(material) == 0 {
		return nil, errors.New("empty key material")
	}
	h := sha256.Sum256(material)
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &cipherBox{gcm: gcm}, nil
}

func (c *cipherBox) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := c.gcm.Seal(nil, nonce, plain, nil)
	out := make([]byte, 1+len(nonce)+len(ct))
	out[0] = ctVersion
	copy(out[1:1+len(nonce)], nonce)
	copy(out[1+len(nonce):], ct)
	return out, nil
}

func (c *cipherBox) open(blob []byte) ([]byte, error) {
	ns := c.gcm.NonceSize()
	if len(blob) < 1+ns+c.gcm.Overhead() || blob[0] != ctVersion {
		return nil, ErrIntegrity
	}
	plain, err := c.gcm.Open(nil, blob[1:1+ns], blob[1+ns:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plain, nil
}
