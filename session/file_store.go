package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists the credential in a single file readable only by the
// owner. Writes go through a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store at path. The parent directory is created on
// first Save.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store path is empty")
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load implements [CredentialStore].
func (f *FileStore) Load(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", ErrNoCredential
	}
	return value, nil
}

// Save implements [CredentialStore].
func (f *FileStore) Save(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return f.Clear(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path, []byte(credential))
}

// Clear implements [CredentialStore].
func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CookiePath returns the file holding persisted cookies, next to the
// credential file.
func (f *FileStore) CookiePath() string {
	return f.path + ".cookies"
}

// LoadCookies implements [CookieStore].
func (f *FileStore) LoadCookies(context.Context) ([]Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.CookiePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Cookie{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("%w: decode cookies: %v", ErrStoreUnavailable, err)
	}
	return cookies, nil
}

// SaveCookies implements [CookieStore]. An empty list removes the file.
func (f *FileStore) SaveCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return f.ClearCookies(ctx)
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("%w: encode cookies: %v", ErrStoreUnavailable, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.CookiePath(), data)
}

// ClearCookies implements [CookieStore].
func (f *FileStore) ClearCookies(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.CookiePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// writeAtomic replaces path with data through a 0600 temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
