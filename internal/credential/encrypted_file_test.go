package credential

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterPassword = "Correct-Horse-Battery-9"

func TestEncryptedFileStore_SetGetPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.enc")

	s1, err := newEncryptedFileStoreWithPassword(path, testMasterPassword)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "anthropic", "api_key", "sk-ant-real-12345"))

	s2, err := newEncryptedFileStoreWithPassword(path, testMasterPassword)
	require.NoError(t, err)
	value, found, err := s2.Get(ctx, "anthropic", "api_key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sk-ant-real-12345", value)
}

func TestEncryptedFileStore_WrongPasswordFailsToOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	s1, err := newEncryptedFileStoreWithPassword(path, testMasterPassword)
	require.NoError(t, err)
	require.NoError(t, s1.Set(context.Background(), "anthropic", "api_key", "sk-ant-real-12345"))

	_, err = newEncryptedFileStoreWithPassword(path, "a-completely-different-pw")
	assert.Error(t, err)
}

func TestEncryptedFileStore_DeleteRemovesEmptyServiceEntry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.enc")
	s, err := newEncryptedFileStoreWithPassword(path, testMasterPassword)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "anthropic", "api_key", "value"))
	deleted, err := s.Delete(ctx, "anthropic", "api_key")
	require.NoError(t, err)
	assert.True(t, deleted)

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEncryptedFileStore_RejectsWeakPasswordOnNewVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	_, err := newEncryptedFileStoreWithPassword(path, "short")
	assert.Error(t, err)
}

func TestEncryptedFileStore_OpensCleanOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.enc")
	s, err := newEncryptedFileStoreWithPassword(path, testMasterPassword)
	require.NoError(t, err)

	items, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}
