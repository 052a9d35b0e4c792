package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWordServer serves body with the given content type and counts requests.
func newWordServer(t *testing.T, contentType, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestLoaderDownloadsOnce(t *testing.T) {
	srv, hits := newWordServer(t, "text/plain; charset=utf-8", "Zebra apple zebra 42 mango")
	dir := t.TempDir()
	loader := NewLoader(dir, WithAllowPrivateHosts(true))
	key := srv.URL + "/words.txt"

	words, err := loader.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "apple", "mango"}, words)

	words, err = loader.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, words, 3)
	assert.Equal(t, int32(1), hits.Load(), "second load must come from disk")

	src, err := Resolve(key)
	require.NoError(t, err)
	_, err = os.Stat(loader.Path(src))
	assert.NoError(t, err)
}

func TestLoaderDownloadFailures(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
		path        string
		maxBytes    int64
		wantErr     error
	}{
		{name: "Too large", contentType: "text/plain", body: strings.Repeat("word ", 100), path: "/big.txt", maxBytes: 64, wantErr: ErrTooLarge},
		{name: "Wrong content type", contentType: "application/json", body: `{"words":[]}`, path: "/words.json", wantErr: ErrContentType},
		{name: "Empty body", contentType: "text/plain", body: "", path: "/empty.txt", wantErr: ErrEmptyDownload},
		{name: "Not found", contentType: "text/plain", body: "", path: "/missing.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newWordServer(t, tc.contentType, tc.body)
			dir := t.TempDir()
			opts := []LoaderOption{WithAllowPrivateHosts(true)}
			if tc.maxBytes > 0 {
				opts = append(opts, WithMaxBytes(tc.maxBytes))
			}
			loader := NewLoader(dir, opts...)

			_, err := loader.Load(context.Background(), srv.URL+tc.path)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			// Nothing is published for a failed download.
			files, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, files)
		})
	}
}

func TestLoaderRejectsPrivateHosts(t *testing.T) {
	srv, hits := newWordServer(t, "text/plain", "apple")
	loader := NewLoader(t.TempDir())

	_, err := loader.Load(context.Background(), srv.URL+"/words.txt")
	assert.ErrorIs(t, err, ErrUnsafeURL)
	assert.Equal(t, int32(0), hits.Load())
}

func TestCheckURL(t *testing.T) {
	loader := NewLoader(t.TempDir())
	ctx := context.Background()

	for _, raw := range []string{
		"ftp://example.com/words.txt",
		"http://localhost/words.txt",
		"http://127.0.0.1/words.txt",
		"http://10.0.0.8/words.txt",
		"http://192.168.1.1/words.txt",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/words.txt",
		"http:///words.txt",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.ErrorIs(t, loader.checkURL(ctx, u), ErrUnsafeURL, raw)
	}

	u, err := url.Parse("http://8.8.8.8/words.txt")
	require.NoError(t, err)
	assert.NoError(t, loader.checkURL(ctx, u))
}

func TestLoaderFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mine.txt")
	require.NoError(t, os.WriteFile(path, []byte("Lorem ipsum\ndolor sit amet\nlorem"), 0o644))

	loader := NewLoader(t.TempDir())
	words, err := loader.Load(context.Background(), FilePrefix+path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lorem", "ipsum", "dolor", "sit", "amet"}, words)

	_, err = loader.Load(context.Background(), FilePrefix+filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoaderPath(t *testing.T) {
	loader := NewLoader("/cache")

	src, err := Resolve("en")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/cache", "words_en.txt"), loader.Path(src))

	src, err = Resolve("https://example.com/a.txt")
	require.NoError(t, err)
	assert.Regexp(t, `words_url_[0-9a-f]{32}\.txt$`, loader.Path(src))
}
