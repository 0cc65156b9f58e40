package cryptoutil

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b are equal, in time independent
// of their contents, to avoid leaking token values through response-time
// side channels (e.g. the /_hostmap bearer token check).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
