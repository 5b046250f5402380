package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-test")

	p := &envProvider{}
	key, err := p.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-test", key)
}

func TestEnvProvider_Missing(t *testing.T) {
	t.Setenv(EnvAPIKey, "")

	p := &envProvider{}
	_, err := p.APIKey(context.Background())
	require.Error(t, err)
}

func TestDotEnvProvider(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("DEEPSEEK_API_KEY=sk-dotenv\n"), 0o600))

	provider := NewDotEnvProvider(p)
	key, err := provider.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-dotenv", key)
}

func TestNewProvider_Auto(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-auto")

	p, err := NewProvider("auto")
	require.NoError(t, err)
	key, err := p.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-auto", key)
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider("vault")
	require.Error(t, err)
}
