package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptWithPassword_RoundTrip(t *testing.T) {
	plaintext := []byte(`{"anthropic":{"api_key":"sk-ant-real-12345"}}`)
	password := "Correct-Horse-Battery-9"

	blob, err := EncryptWithPassword(plaintext, password)
	require.NoError(t, err)
	assert.Len(t, strings.Split(blob, ":"), 4)

	got, err := DecryptWithPassword(blob, password)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWithPassword_WrongPasswordFails(t *testing.T) {
	blob, err := EncryptWithPassword([]byte("secret"), "Correct-Horse-Battery-9")
	require.NoError(t, err)

	_, err = DecryptWithPassword(blob, "Wrong-Horse-Battery-9")
	assert.ErrorIs(t, err, ErrBadCiphertext)
}

func TestDecryptWithPassword_MalformedBlobFails(t *testing.T) {
	_, err := DecryptWithPassword("not-a-valid-blob", "whatever-password-12")
	assert.ErrorIs(t, err, ErrBadCiphertext)
}

func TestEncryptWithPassword_FreshSaltAndIVPerCall(t *testing.T) {
	blob1, err := EncryptWithPassword([]byte("same plaintext"), "Correct-Horse-Battery-9")
	require.NoError(t, err)
	blob2, err := EncryptWithPassword([]byte("same plaintext"), "Correct-Horse-Battery-9")
	require.NoError(t, err)
	assert.NotEqual(t, blob1, blob2)
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"too short", "Ab1!", true},
		{"only two classes", "alllowercase12", true},
		{"meets three classes", "Correct-Horse-9", false},
		{"all four classes", "Correct-Horse-Battery-9!", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tc.password)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("token"), []byte("token")))
	assert.False(t, ConstantTimeEqual([]byte("token"), []byte("tokEn")))
	assert.False(t, ConstantTimeEqual([]byte("token"), []byte("short")[:3]))
}
