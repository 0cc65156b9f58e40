package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the fixed iteration count used to derive an AES-256
// key from a password. This is part of the encrypted-file wire format;
// changing it would make existing vaults undecryptable.
const PBKDF2Iterations = 600_000

const (
	saltSize = 16
	ivSize   = 12
	tagSize  = 16
	keySize  = 32
)

// ErrBadCiphertext is returned by DecryptWithPassword when the blob is
// malformed, the password is wrong, or the auth tag does not verify.
var ErrBadCiphertext = errors.New("bad ciphertext")

// EncryptWithPassword derives a 256-bit key from password via PBKDF2-SHA256
// and seals plaintext with AES-256-GCM, using a fresh salt and IV for every
// call. The result is the four-field colon-separated base64 blob:
// salt:iv:auth_tag:ciphertext.
func EncryptWithPassword(plaintext []byte, password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	fields := []string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}
	return strings.Join(fields, ":"), nil
}

// DecryptWithPassword inverts EncryptWithPassword. A malformed blob, a wrong
// password, or a tampered ciphertext all fail with ErrBadCiphertext.
func DecryptWithPassword(blob string, password string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrBadCiphertext, len(parts))
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding salt: %v", ErrBadCiphertext, err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding iv: %v", ErrBadCiphertext, err)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding auth tag: %v", ErrBadCiphertext, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: decoding ciphertext: %v", ErrBadCiphertext, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// ValidatePasswordStrength requires a master password of length >= 12
// containing at least three of {lowercase, uppercase, digit, symbol}.
func ValidatePasswordStrength(password string) error {
	if len(password) < 12 {
		return fmt.Errorf("password must be at least 12 characters, got %d", len(password))
	}
	var classes int
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if has {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf("password must contain at least three of: lowercase, uppercase, digit, symbol")
	}
	return nil
}
