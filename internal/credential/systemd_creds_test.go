package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystemdCredsStore(t *testing.T, unit string) *SystemdCredsStore {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, unit), 0700))
	return &SystemdCredsStore{unit: unit, root: root}
}

func TestSystemdCredsStore_GetReadsProvisionedFile(t *testing.T) {
	ctx := context.Background()
	s := newTestSystemdCredsStore(t, "aquaman.service")

	require.NoError(t, os.WriteFile(s.path("anthropic", "api_key"), []byte("sk-ant-real-12345\n"), 0600))

	value, found, err := s.Get(ctx, "anthropic", "api_key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sk-ant-real-12345", value)
}

func TestSystemdCredsStore_GetMissingIsNotFound(t *testing.T) {
	s := newTestSystemdCredsStore(t, "aquaman.service")
	_, found, err := s.Get(context.Background(), "anthropic", "api_key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSystemdCredsStore_SetIsUnsupported(t *testing.T) {
	s := newTestSystemdCredsStore(t, "aquaman.service")
	err := s.Set(context.Background(), "anthropic", "api_key", "x")

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindUnsupported, be.Kind)
}

func TestSystemdCredsStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestSystemdCredsStore(t, "aquaman.service")
	require.NoError(t, os.WriteFile(s.path("anthropic", "api_key"), []byte("a"), 0600))
	require.NoError(t, os.WriteFile(s.path("openai", "api_key"), []byte("b"), 0600))

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
