package credential

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnePasswordStore_ClassifyError_NotSignedIn(t *testing.T) {
	s := NewOnePasswordStore("Dev", "")
	err := s.classifyError("[ERROR] You are not currently signed in", "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindNotAvailable, be.Kind)
	assert.Contains(t, be.Fix, "op signin")
}

func TestOnePasswordStore_ClassifyError_VaultNotFound(t *testing.T) {
	s := NewOnePasswordStore("Dev", "")
	err := s.classifyError(`"Dev" isn't a vault`, "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindPermissionDenied, be.Kind)
	assert.Contains(t, be.Reason, "vault")
}

func TestOnePasswordStore_ClassifyError_Generic(t *testing.T) {
	s := NewOnePasswordStore("Dev", "")
	err := s.classifyError("some unexpected error", "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindTransient, be.Kind)
}

func TestIsOpNotFound(t *testing.T) {
	assert.True(t, isOpNotFound(`"OpenAI" isn't an item`))
	assert.True(t, isOpNotFound("the item could not be found"))
	assert.False(t, isOpNotFound("network error"))
}
