// Package cryptoutil provides the fixed-parameter cryptographic primitives
// used by the audit log and credential store. The parameters here (hash
// algorithm, PBKDF2 iteration count, nonce sizes) are part of the on-disk
// wire format: changing them silently would make existing audit logs and
// encrypted credential files unverifiable.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ComputeHash returns the lowercase hex SHA-256 digest of data.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeChainedHash returns SHA256(previousHashHex ‖ data), hex-encoded.
// previousHashHex is appended as its raw ASCII bytes, not decoded, matching
// the audit log's canonical-JSON hashing scheme.
func ComputeChainedHash(data []byte, previousHashHex string) string {
	h := sha256.New()
	h.Write([]byte(previousHashHex))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateID returns an RFC 4122 v4 UUID string.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateNonce returns n random bytes, hex-encoded.
func GenerateNonce(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
