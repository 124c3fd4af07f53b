// Package cryptox holds the symmetric and asymmetric primitives used for
// chat key management: AES-256-GCM sealing with associated data, argon2/HKDF
// key derivation, key wrapping and age X25519 sealing of key bundles.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/dmitrijs2005/arcticchat/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32
	NonceSize = 12
)

var ErrOpen = errors.New("cryptox: message authentication failed")

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// NewNonce returns a fresh random 96-bit GCM nonce.
func NewNonce() []byte {
	return common.GenerateRandByteArray(NonceSize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptox: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext under key with the supplied nonce, binding aad.
// The caller owns nonce uniqueness.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("cryptox: nonce must be %d bytes", gcm.NonceSize())
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any tampering with ciphertext, nonce or aad yields ErrOpen.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrOpen
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

// DeriveMasterKey stretches a configured secret with argon2id.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// DeriveSubkey expands master into a purpose-bound key with HKDF-SHA256.
func DeriveSubkey(master []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

// WrapKey seals a data key under the key-encryption key kek.
func WrapKey(kek, key, aad []byte) (wrapped, nonce []byte, err error) {
	nonce = NewNonce()
	wrapped, err = Seal(kek, nonce, key, aad)
	return wrapped, nonce, err
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(kek, wrapped, nonce, aad []byte) ([]byte, error) {
	return Open(kek, nonce, wrapped, aad)
}

// ValidateRecipient checks that s is an age X25519 public key ("age1...").
func ValidateRecipient(s string) error {
	_, err := age.ParseX25519Recipient(s)
	return err
}

// SealForRecipients encrypts payload so that only holders of the matching age
// identities can read it.
func SealForRecipients(payload []byte, recipients ...string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("cryptox: no recipients")
	}
	rs := make([]age.Recipient, 0, len(recipients))
	for _, r := range recipients {
		rcpt, err := age.ParseX25519Recipient(r)
		if err != nil {
			return nil, fmt.Errorf("cryptox: recipient: %w", err)
		}
		rs = append(rs, rcpt)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, rs...)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OpenWithIdentity decrypts a payload produced by SealForRecipients using an
// "AGE-SECRET-KEY-1..." identity string.
func OpenWithIdentity(sealed []byte, identity string) ([]byte, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), id)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// GenerateIdentity returns a new age identity and its public recipient string.
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", err
	}
	return id.String(), id.Recipient().String(), nil
}

// RecipientOf returns the public recipient string of an age identity.
func RecipientOf(identity string) (string, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return "", err
	}
	return id.Recipient().String(), nil
}
