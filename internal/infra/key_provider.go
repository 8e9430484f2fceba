package infra

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const (
	storeKeyFileName = ".store.key"
	storeKeySize     = 32 // SQLCipher raw key

	apiTokenFileName = ".api.token"
	apiTokenSize     = 32
)

// FileKeyProvider keeps the store passphrase in a 0600 file next to the database.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, storeKeyFileName),
	}
}

// GetKey reads and validates the store key.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read store key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode store key: %w", err)
	}
	if len(key) != storeKeySize {
		return nil, fmt.Errorf("invalid store key size: got %d, want %d", len(key), storeKeySize)
	}
	return key, nil
}

// StoreKey writes key, creating the data directory if needed.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != storeKeySize {
		return fmt.Errorf("invalid store key size: got %d, want %d", len(key), storeKeySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write store key: %w", err)
	}
	return nil
}

// KeyExists reports whether a key file is present.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// Path returns the key file location.
func (p *FileKeyProvider) Path() string {
	return p.keyPath
}

// GenerateKey returns a random store key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, storeKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate store key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the existing key, generating and storing one on first run.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// OpenStore opens the encrypted store in dataDir, creating its key on first run.
func OpenStore(dataDir string, pm domain.ProcessManager) (*EncryptedStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to get store key: %w", err)
	}
	return NewEncryptedStore(dataDir, key, pm)
}

// APITokenPath returns the location of the control API token in dataDir.
func APITokenPath(dataDir string) string {
	return filepath.Join(dataDir, apiTokenFileName)
}

// ReadAPIToken reads the control API token written by the daemon.
func ReadAPIToken(dataDir string) (string, error) {
	raw, err := os.ReadFile(APITokenPath(dataDir))
	if err != nil {
		return "", fmt.Errorf("failed to read api token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if len(token) != hex.EncodedLen(apiTokenSize) {
		return "", fmt.Errorf("invalid api token length: got %d, want %d", len(token), hex.EncodedLen(apiTokenSize))
	}
	return token, nil
}

// EnsureAPIToken returns the existing control API token, creating a 0600
// token file on first run.
func EnsureAPIToken(dataDir string) (string, error) {
	token, err := ReadAPIToken(dataDir)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	raw := make([]byte, apiTokenSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api token: %w", err)
	}
	token = hex.EncodeToString(raw)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(APITokenPath(dataDir), []byte(token), 0600); err != nil {
		return "", fmt.Errorf("failed to write api token: %w", err)
	}
	return token, nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
