package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mediagrab"
	keyringPrefix  = "apikey_"
)

// KeyringStore keeps one JSON-encoded Credential per platform in the
// system keychain
type KeyringStore struct {
	// Platforms are probed by List, since the keychain cannot enumerate
	Platforms []string
}

// NewKeyringStore returns an error when no keychain is reachable
func NewKeyringStore() (*KeyringStore, error) {
	probe := keyringPrefix + "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{Platforms: KnownPlatforms}, nil
}

func (k *KeyringStore) Store(cred *Credential) error {
	if cred == nil || cred.Platform == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+cred.Platform, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(platform string) (*Credential, error) {
	if platform == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+platform)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

func (k *KeyringStore) List() ([]*Credential, error) {
	var out []*Credential
	for _, p := range k.Platforms {
		if c, err := k.Retrieve(p); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (k *KeyringStore) Delete(platform string) error {
	if platform == "" {
		return ErrInvalidCredentials
	}
	if err := keyring.Delete(keyringService, keyringPrefix+platform); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(platform string) bool {
	_, err := k.Retrieve(platform)
	return err == nil
}
