// Package files stores images uploaded for image triggers, one directory
// per guild.
package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultMaxSize bounds downloads.
const DefaultMaxSize = 8 << 20

// Client is the HTTP client used for downloads.
type Client interface {
	Do(r *http.Request) (*http.Response, error)
}

// Store implements dispatch.FileStore on an afero filesystem.
type Store struct {
	fs      afero.Fs
	dir     string
	http    Client
	maxSize int64
}

// New constructs a *Store rooted at dir on fs. A nil client uses
// http.DefaultClient.
func New(fs afero.Fs, dir string, client Client) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{fs: fs, dir: dir, http: client, maxSize: DefaultMaxSize}
}

func (s *Store) path(guildID, name string) (string, error) {
	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "/" || clean == "." || clean != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if guildID == "" || strings.ContainsAny(guildID, `/\.`) {
		return "", fmt.Errorf("invalid guild id %q", guildID)
	}
	return filepath.Join(s.dir, guildID, clean), nil
}

// Open returns the named file of guildID.
func (s *Store) Open(guildID, name string) (io.ReadCloser, error) {
	p, err := s.path(guildID, name)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(p)
}

// Save writes r under a new unique name derived from name's extension
// and returns that name.
func (s *Store) Save(guildID, name string, r io.Reader) (string, error) {
	stored := uuid.NewString() + strings.ToLower(path.Ext(name))
	p, err := s.path(guildID, stored)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}

	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxSize {
		err = fmt.Errorf("file larger than %d bytes", s.maxSize)
	}
	if err != nil {
		_ = s.fs.Remove(p)
		return "", err
	}
	return stored, nil
}

// Remove deletes the named file of guildID.
func (s *Store) Remove(guildID, name string) error {
	p, err := s.path(guildID, name)
	if err != nil {
		return err
	}
	return s.fs.Remove(p)
}

// Download fetches url and saves it for guildID.
func (s *Store) Download(ctx context.Context, guildID, url string) (string, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("building GET request to %q: %v", url, err)
	}
	req.Header.Add("User-Agent", "retrigger bot")
	req = req.WithContext(ctx)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("making http request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("non-200 status code: %d - %s", resp.StatusCode, resp.Status)
	}

	name := path.Base(req.URL.Path)
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return s.Save(guildID, name, resp.Body)
}
