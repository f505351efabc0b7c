package tweets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// AccountStore persists followed accounts.
type AccountStore interface {
	LoadAccounts(ctx context.Context) ([]Account, error)
	SaveAccounts(ctx context.Context, accounts []Account) error
}

// FileStore keeps followed accounts as JSON in one file.
type FileStore struct {
	fs   afero.Fs
	path string
}

var _ AccountStore = (*FileStore)(nil)

// NewFileStore constructs a *FileStore writing to path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// LoadAccounts reads the saved accounts. A missing file holds none.
func (s *FileStore) LoadAccounts(ctx context.Context) ([]Account, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", s.path, err)
	}
	var accounts []Account
	if err := json.Unmarshal(b, &accounts); err != nil {
		return nil, fmt.Errorf("decoding %s: %v", s.path, err)
	}
	return accounts, nil
}

// SaveAccounts replaces the saved accounts. The file is written next to
// its final path and renamed so a crash leaves the previous version.
func (s *FileStore) SaveAccounts(ctx context.Context, accounts []Account) error {
	b, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %v", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming %s: %v", tmp, err)
	}
	return nil
}
