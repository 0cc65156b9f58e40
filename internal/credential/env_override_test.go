package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvVarName_SanitizesAndUppercases(t *testing.T) {
	assert.Equal(t, "AQUAMAN_ANTHROPIC_API_KEY", envVarName("anthropic", "api_key"))
	assert.Equal(t, "AQUAMAN_MY_SVC_SOME_KEY", envVarName("my-svc", "some.key"))
}

func TestEnvOverrideStore_ShortCircuitsBeforeBackend(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(ctx, "anthropic", "api_key", "from-backend"))

	t.Setenv(envVarName("anthropic", "api_key"), "from-env")

	s := WithEnvOverride(inner)
	value, found, err := s.Get(ctx, "anthropic", "api_key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-env", value)
}

func TestEnvOverrideStore_FallsThroughWhenUnset(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Set(ctx, "anthropic", "api_key", "from-backend"))

	s := WithEnvOverride(inner)
	value, found, err := s.Get(ctx, "anthropic", "api_key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-backend", value)
}

func TestEnvOverrideStore_SetDeleteListPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := WithEnvOverride(inner)

	require.NoError(t, s.Set(ctx, "openai", "api_key", "v"))
	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	deleted, err := s.Delete(ctx, "openai", "api_key")
	require.NoError(t, err)
	assert.True(t, deleted)
}
