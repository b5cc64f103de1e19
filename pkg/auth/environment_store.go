package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore reads MEDIAGRAB_<PLATFORM>_API_KEY. It is read-only.
type EnvironmentStore struct {
	// Platforms are listed by List; KnownPlatforms when nil
	Platforms []string
}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvVar is the variable holding the key of platform
func EnvVar(platform string) string {
	return "MEDIAGRAB_" + strings.ToUpper(NormalizePlatform(platform)) + "_API_KEY"
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the key of platform from the environment
func (e *EnvironmentStore) Retrieve(platform string) (*Credential, error) {
	if NormalizePlatform(platform) == "" {
		return nil, ErrInvalidCredentials
	}
	key := strings.TrimSpace(os.Getenv(EnvVar(platform)))
	if key == "" {
		return nil, ErrCredentialsNotFound
	}
	return &Credential{
		Platform:     NormalizePlatform(platform),
		APIKey:       key,
		LastModified: time.Now(),
	}, nil
}

// List returns the credentials of every platform with its variable set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	platforms := e.Platforms
	if platforms == nil {
		platforms = KnownPlatforms
	}
	var out []*Credential
	for _, p := range platforms {
		if c, err := e.Retrieve(p); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if the variable of platform is set
func (e *EnvironmentStore) Exists(platform string) bool {
	_, err := e.Retrieve(platform)
	return err == nil
}
