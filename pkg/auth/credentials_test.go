package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStoreRetrieveDelete(t *testing.T) {
	manager, store := NewMockManager()

	require.NoError(t, manager.Store(&Credential{Platform: " PixelDrain ", APIKey: " key-1234567890 "}))
	assert.Equal(t, 1, store.Count())

	cred, err := manager.Retrieve("pixeldrain")
	require.NoError(t, err)
	assert.Equal(t, "pixeldrain", cred.Platform)
	assert.Equal(t, "key-1234567890", cred.APIKey)
	assert.False(t, cred.LastModified.IsZero())
	assert.Equal(t, "key-1234567890", manager.APIKey("PIXELDRAIN"))

	require.NoError(t, manager.Delete("pixeldrain"))
	_, err = manager.Retrieve("pixeldrain")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Empty(t, manager.APIKey("pixeldrain"))

	assert.ErrorIs(t, manager.Delete("pixeldrain"), ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()
	assert.ErrorIs(t, manager.Store(nil), ErrInvalidCredentials)
	assert.Error(t, manager.Store(&Credential{APIKey: "x"}))
	assert.Error(t, manager.Store(&Credential{Platform: "pixeldrain", APIKey: "  "}))
}

func TestManagerFallsBackAcrossStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("locked")
	broken.RetrieveError = errors.New("locked")
	backup := NewMockStore()

	manager := NewManagerWithStores(broken, backup)
	require.NoError(t, manager.Store(&Credential{Platform: "pixeldrain", APIKey: "abc"}))
	assert.True(t, backup.Exists("pixeldrain"))

	cred, err := manager.Retrieve("pixeldrain")
	require.NoError(t, err)
	assert.Equal(t, "abc", cred.APIKey)

	backup.StoreError = errors.New("full")
	assert.Error(t, manager.Store(&Credential{Platform: "pixeldrain", APIKey: "abc"}))
}

func TestManagerListPrefersNewest(t *testing.T) {
	a, b := NewMockStore(), NewMockStore()
	manager := NewManagerWithStores(a, b)

	require.NoError(t, manager.Store(&Credential{Platform: "pixeldrain", APIKey: "old"}))
	require.NoError(t, b.Store(&Credential{Platform: "zeta", APIKey: "z"}))
	newer, _ := a.Retrieve("pixeldrain")
	older := *newer
	older.APIKey = "stale"
	older.LastModified = newer.LastModified.Add(-1)
	require.NoError(t, b.Store(&older))

	list, err := manager.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pixeldrain", list[0].Platform)
	assert.Equal(t, "old", list[0].APIKey)
	assert.Equal(t, "zeta", list[1].Platform)
}

func TestSanitizeCredential(t *testing.T) {
	assert.Nil(t, SanitizeCredential(nil))
	c := SanitizeCredential(&Credential{Platform: "pixeldrain", APIKey: "abcd1234efgh5678"})
	assert.Equal(t, "abcd...5678", c.APIKey)
	assert.Equal(t, "pixeldrain", c.Platform)
	assert.Equal(t, "********", maskString("short"))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	require.NoError(t, err)

	_, err = store.Retrieve("pixeldrain")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Credential{Platform: "pixeldrain", APIKey: "secret-key-value"}))
	require.NoError(t, store.Store(&Credential{Platform: "other", APIKey: "second"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "secret-key-value")

	cred, err := store.Retrieve("pixeldrain")
	require.NoError(t, err)
	assert.Equal(t, "secret-key-value", cred.APIKey)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "other", list[0].Platform)

	wrong, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = wrong.Retrieve("pixeldrain")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Delete("other"))
	require.NoError(t, store.Delete("pixeldrain"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStorePassphraseFile(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	dir := t.TempDir()
	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Credential{Platform: "pixeldrain", APIKey: "k"}))

	pass, err := os.ReadFile(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.NotEmpty(t, pass)

	again, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.True(t, again.Exists("pixeldrain"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("MEDIAGRAB_PIXELDRAIN_API_KEY", " env-key ")
	store := NewEnvironmentStore()

	assert.Equal(t, "MEDIAGRAB_PIXELDRAIN_API_KEY", EnvVar("Pixeldrain"))
	cred, err := store.Retrieve("pixeldrain")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cred.APIKey)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Retrieve("other")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Store(&Credential{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("pixeldrain"), ErrStoreUnavailable)
}

func TestGuides(t *testing.T) {
	var buf bytes.Buffer
	ShowCookieExportGuide(&buf)
	assert.Contains(t, buf.String(), "Netscape HTTP Cookie File")

	buf.Reset()
	ShowAPIKeyGuide(&buf, "pixeldrain")
	assert.Contains(t, buf.String(), "MEDIAGRAB_PIXELDRAIN_API_KEY")

	buf.Reset()
	ShowAPIKeyGuide(&buf, "nowhere")
	assert.Contains(t, buf.String(), "Known platforms")
}
