package files

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOpen(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/images", nil)

	name, err := s.Save("g1", "Cat.PNG", strings.NewReader("meow"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"))

	f, err := s.Open("g1", name)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(b))

	_, err = s.Open("g2", name)
	assert.Error(t, err, "files are per guild")

	require.NoError(t, s.Remove("g1", name))
	_, err = s.Open("g1", name)
	assert.Error(t, err)
}

func TestRejectsTraversal(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/images", nil)
	for _, name := range []string{"../secret", "a/b.png", "", "."} {
		_, err := s.Open("g1", name)
		assert.Error(t, err, name)
	}
	_, err := s.Open("../g1", "x.png")
	assert.Error(t, err)
}

func TestSaveTooLarge(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/images", nil)
	s.maxSize = 3

	_, err := s.Save("g1", "big.png", strings.NewReader("toolong"))
	assert.Error(t, err)

	entries, err := afero.ReadDir(fs, "/images/g1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gopher.gif" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("GIF89a"))
	}))
	defer srv.Close()

	s := New(afero.NewMemMapFs(), "/images", srv.Client())

	name, err := s.Download(context.Background(), "g1", srv.URL+"/gopher.gif?size=large")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".gif"))

	_, err = s.Download(context.Background(), "g1", srv.URL+"/missing.gif")
	assert.Error(t, err)
}
