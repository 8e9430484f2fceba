package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "KeyExists returns false when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.False(t, provider.KeyExists())
			},
		},
		{
			name: "StoreKey writes 0600 file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				info, err := os.Stat(provider.Path())
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			},
		},
		{
			name: "GetKey returns stored key",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				retrieved, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, retrieved)
			},
		},
		{
			name: "GetKey tolerates trailing newline",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				raw, err := os.ReadFile(provider.Path())
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(provider.Path(), append(raw, '\n'), 0600))

				retrieved, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, retrieved)
			},
		},
		{
			name: "GetKey returns error when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "GetKey rejects corrupt key",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				require.NoError(t, os.WriteFile(provider.Path(), []byte("not base64!"), 0600))
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "StoreKey rejects wrong key size",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				err := provider.StoreKey([]byte("tooshort"))
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid store key size")
			},
		},
		{
			name: "StoreKey creates directory if missing",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				provider.keyPath = filepath.Join(filepath.Dir(provider.keyPath), "nested", "dir", storeKeyFileName)

				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				assert.True(t, provider.KeyExists())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.testFn(t, NewFileKeyProvider(t.TempDir()))
		})
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Len(t, key, storeKeySize)
		assert.False(t, keys[string(key)], "duplicate key generated")
		keys[string(key)] = true
	}
}

func TestEnsureKey(t *testing.T) {
	dataDir := t.TempDir()
	provider := NewFileKeyProvider(dataDir)

	first, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Len(t, first, storeKeySize)
	assert.True(t, provider.KeyExists())

	second, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOpenStore_ReusesKey(t *testing.T) {
	dataDir := t.TempDir()
	pm := newMockProcessManager()

	store, err := OpenStore(dataDir, pm)
	require.NoError(t, err)
	require.NoError(t, store.SetBootID(testContext(t), "42"))
	require.NoError(t, store.Close())

	store, err = OpenStore(dataDir, pm)
	require.NoError(t, err)
	defer store.Close()
	id, err := store.BootID(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestEnsureAPIToken(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	token, err := EnsureAPIToken(dataDir)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	info, err := os.Stat(APITokenPath(dataDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := EnsureAPIToken(dataDir)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	read, err := ReadAPIToken(dataDir)
	require.NoError(t, err)
	assert.Equal(t, token, read)
}

func TestReadAPIToken_Invalid(t *testing.T) {
	dataDir := t.TempDir()

	_, err := ReadAPIToken(dataDir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(APITokenPath(dataDir), []byte("short"), 0600))
	_, err = ReadAPIToken(dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api token length")

	_, err = EnsureAPIToken(dataDir)
	require.Error(t, err)
}
