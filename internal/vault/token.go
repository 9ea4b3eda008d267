package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// tokenVersion is the current token format version byte.
const tokenVersion = 0x01

// tokenHeaderLen is version byte plus big-endian unix timestamp.
const tokenHeaderLen = 1 + 8

var (
	// ErrInvalidToken indicates a token that is not in the expected format.
	ErrInvalidToken = errors.New("invalid vault token")

	// ErrDecryptFailed indicates a token that failed authentication; either
	// the key is wrong or the token was tampered with.
	ErrDecryptFailed = errors.New("vault token failed authentication")
)

// Cipher seals raw values into opaque tokens and opens them again. The
// receipt store and descrub service share the vault's cipher so one key
// protects every artifact of an operation.
type Cipher interface {
	Seal(plaintext []byte) (string, error)
	Open(token string) ([]byte, error)
}

// Box is an XChaCha20-Poly1305 Cipher producing versioned, timestamped
// tokens: version ‖ unix-seconds ‖ nonce ‖ ciphertext, base64url encoded.
// The header is authenticated as additional data.
type Box struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewBox builds a Box from a KeySize-byte key.
func NewBox(key []byte) (*Box, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return &Box{aead: aead, now: time.Now}, nil
}

// Seal encrypts plaintext into a token.
func (b *Box) Seal(plaintext []byte) (string, error) {
	header := make([]byte, tokenHeaderLen)
	header[0] = tokenVersion
	binary.BigEndian.PutUint64(header[1:], uint64(b.now().Unix()))

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, tokenHeaderLen+len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, header...)
	out = append(out, nonce...)
	out = b.aead.Seal(out, nonce, plaintext, header)

	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a token produced by Seal.
func (b *Box) Open(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(raw) < tokenHeaderLen+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidToken)
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidToken, raw[0])
	}

	header := raw[:tokenHeaderLen]
	nonce := raw[tokenHeaderLen : tokenHeaderLen+chacha20poly1305.NonceSizeX]
	ciphertext := raw[tokenHeaderLen+chacha20poly1305.NonceSizeX:]

	plaintext, err := b.aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// TokenTime extracts the seal timestamp from a token without decrypting it.
// The timestamp is only trustworthy after a successful Open.
func TokenTime(token string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < tokenHeaderLen {
		return time.Time{}, fmt.Errorf("%w: no header", ErrInvalidToken)
	}
	return time.Unix(int64(binary.BigEndian.Uint64(raw[1:tokenHeaderLen])), 0).UTC(), nil
}
