package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Credential is the API key of one file-host platform
type Credential struct {
	Platform     string    `json:"platform"`
	APIKey       string    `json:"api_key"`
	LastModified time.Time `json:"last_modified"`
}

// KnownPlatforms accept an API key
var KnownPlatforms = []string{"pixeldrain"}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves the credential of one platform
	Store(cred *Credential) error

	// Retrieve gets the credential of platform
	Retrieve(platform string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes the credential of platform
	Delete(platform string) error

	// Exists checks if a credential exists for platform
	Exists(platform string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager over the system keychain when available,
// an encrypted file in the config directory, and the environment
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())
	return &Manager{stores: stores}, nil
}

// NormalizePlatform lower-cases and trims a platform name
func NormalizePlatform(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// Store saves the credential in the first store that accepts it
func (m *Manager) Store(cred *Credential) error {
	if cred == nil {
		return ErrInvalidCredentials
	}
	cred.Platform = NormalizePlatform(cred.Platform)
	if cred.Platform == "" {
		return errors.New("platform is required")
	}
	if strings.TrimSpace(cred.APIKey) == "" {
		return errors.New("API key is required")
	}
	cred.APIKey = strings.TrimSpace(cred.APIKey)
	cred.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the credential of platform from the first store that has it
func (m *Manager) Retrieve(platform string) (*Credential, error) {
	platform = NormalizePlatform(platform)
	for _, store := range m.stores {
		if cred, err := store.Retrieve(platform); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w for platform: %s", ErrCredentialsNotFound, platform)
}

// APIKey returns the stored key of platform, or "" when there is none
func (m *Manager) APIKey(platform string) string {
	cred, err := m.Retrieve(platform)
	if err != nil {
		return ""
	}
	return cred.APIKey
}

// List returns every stored credential, the most recent per platform,
// sorted by platform
func (m *Manager) List() ([]*Credential, error) {
	byPlatform := make(map[string]*Credential)
	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, c := range creds {
			if existing, ok := byPlatform[c.Platform]; !ok || c.LastModified.After(existing.LastModified) {
				byPlatform[c.Platform] = c
			}
		}
	}

	result := make([]*Credential, 0, len(byPlatform))
	for _, c := range byPlatform {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Platform < result[j].Platform })
	return result, nil
}

// Delete removes the credential of platform from every store
func (m *Manager) Delete(platform string) error {
	platform = NormalizePlatform(platform)
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(platform); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for platform: %s", ErrCredentialsNotFound, platform)
	}
	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	creds, err := m.List()
	if err != nil {
		return err
	}
	for _, c := range creds {
		_ = m.Delete(c.Platform)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mediagrab")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mediagrab")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mediagrab")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mediagrab")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// SanitizeCredential returns a copy with the key masked
func SanitizeCredential(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	return &Credential{
		Platform:     cred.Platform,
		APIKey:       maskString(cred.APIKey),
		LastModified: cred.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
