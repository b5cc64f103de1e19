package auth

import (
	"sort"
	"sync"
)

// MockStore is an in-memory CredentialStore for tests
type MockStore struct {
	mu    sync.RWMutex
	creds map[string]Credential

	// Injected errors
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{creds: make(map[string]Credential)}
}

func (m *MockStore) Store(cred *Credential) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if cred == nil || cred.Platform == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.Platform] = *cred
	return nil
}

func (m *MockStore) Retrieve(platform string) (*Credential, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if platform == "" {
		return nil, ErrInvalidCredentials
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[platform]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &c, nil
}

func (m *MockStore) List() ([]*Credential, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Credential, 0, len(m.creds))
	for _, c := range m.creds {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (m *MockStore) Delete(platform string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if platform == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[platform]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.creds, platform)
	return nil
}

func (m *MockStore) Exists(platform string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.creds[platform]
	return ok
}

// Count returns the number of stored credentials
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}

// NewMockManager creates a Manager backed by a single MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return &Manager{stores: []CredentialStore{store}}, store
}

// NewManagerWithStores creates a Manager that tries stores in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
