package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv, err := GenerateSigningKeypair()
	require.NoError(t, err)

	data := []byte("audit entry payload")
	sig, err := Sign(data, priv)
	require.NoError(t, err)

	assert.True(t, Verify(data, sig, pub))
}

func TestVerify_FailsOnTamperedData(t *testing.T) {
	pub, priv, err := GenerateSigningKeypair()
	require.NoError(t, err)

	sig, err := Sign([]byte("original"), priv)
	require.NoError(t, err)

	assert.False(t, Verify([]byte("tampered"), sig, pub))
}

func TestVerify_FailsOnWrongKey(t *testing.T) {
	_, priv, err := GenerateSigningKeypair()
	require.NoError(t, err)
	otherPub, _, err := GenerateSigningKeypair()
	require.NoError(t, err)

	data := []byte("data")
	sig, err := Sign(data, priv)
	require.NoError(t, err)

	assert.False(t, Verify(data, sig, otherPub))
}

func TestVerify_NeverErrorsOnGarbage(t *testing.T) {
	assert.False(t, Verify([]byte("x"), "not-base64!!", "not a pem"))
	assert.False(t, Verify([]byte("x"), "", ""))
}
