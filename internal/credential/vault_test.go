package credential

import (
	"errors"
	"net/http"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVaultStore_FallsBackToMount(t *testing.T) {
	s, err := NewVaultStore(VaultConfig{Addr: "http://127.0.0.1:8200", Token: "root"})
	require.NoError(t, err)
	assert.Equal(t, "secret/data/anthropic", s.dataPath("anthropic"))
}

func TestNewVaultStore_HonorsConfiguredMount(t *testing.T) {
	s, err := NewVaultStore(VaultConfig{Addr: "http://127.0.0.1:8200", Token: "root", Mount: "kv"})
	require.NoError(t, err)
	assert.Equal(t, "kv/data/anthropic", s.dataPath("anthropic"))
}

func TestClassifyVaultError_Forbidden(t *testing.T) {
	err := classifyVaultError(&vaultapi.ResponseError{StatusCode: http.StatusForbidden}, "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindPermissionDenied, be.Kind)
}

func TestClassifyVaultError_ServerError(t *testing.T) {
	err := classifyVaultError(&vaultapi.ResponseError{StatusCode: http.StatusServiceUnavailable}, "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindTransient, be.Kind)
}

func TestClassifyVaultError_GenericError(t *testing.T) {
	err := classifyVaultError(errors.New("dial tcp: connection refused"), "anthropic", "api_key")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindTransient, be.Kind)
	assert.Contains(t, be.Reason, "connection refused")
}
