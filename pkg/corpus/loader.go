package corpus

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const (
	// UserAgent is sent with every download.
	UserAgent = "wordagen/1.0"
	// DefaultMaxBytes caps a single download.
	DefaultMaxBytes = 50 * 1024 * 1024
	// DefaultTimeout bounds a single download.
	DefaultTimeout = 30 * time.Second
)

// Loader reads corpora, downloading remote lists into a cache directory on
// first use.
type Loader struct {
	dir          string
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
	resolver     *net.Resolver
	logger       *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for downloads. Its redirect policy is
// replaced so that every redirect target is checked.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		c := *client
		l.client = &c
	}
}

// WithMaxBytes sets the download size limit. Default: 50 MiB.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) { l.maxBytes = n }
}

// WithAllowPrivateHosts disables the public-address check. Only meant for
// tests and trusted networks.
func WithAllowPrivateHosts(allow bool) LoaderOption {
	return func(l *Loader) { l.allowPrivate = allow }
}

// NewLoader returns a Loader that keeps downloaded lists in dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:      dir,
		client:   &http.Client{Timeout: DefaultTimeout},
		maxBytes: DefaultMaxBytes,
		resolver: net.DefaultResolver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return l.checkURL(req.Context(), req.URL)
	}
	return l
}

// SetLogger sets the logger for the Loader. By default, all logs are discarded.
func (l *Loader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Path returns where a remote source is stored once downloaded. File sources
// are read in place.
func (l *Loader) Path(src Source) string {
	switch src.Kind {
	case KindFile:
		return src.Path
	case KindURL:
		sum := md5.Sum([]byte(src.URL))
		return filepath.Join(l.dir, "words_url_"+hex.EncodeToString(sum[:])+".txt")
	}
	return filepath.Join(l.dir, "words_"+strings.ReplaceAll(src.Key, ":", "_")+".txt")
}

// Load returns the normalized words of the source named by key.
func (l *Loader) Load(ctx context.Context, key string) ([]string, error) {
	src, err := Resolve(key)
	if err != nil {
		return nil, err
	}
	path := l.Path(src)

	if src.Kind != KindFile {
		if _, err = os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err = l.download(ctx, src.URL, path); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word list: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	words, err := ReadWords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.logger.InfoContext(ctx, "Word list loaded",
		slog.String("source", key),
		slog.String("path", path),
		slog.Int("words", len(words)),
	)
	return words, nil
}

// download fetches rawURL into target, publishing the file only when the
// whole body passed every check.
func (l *Loader) download(ctx context.Context, rawURL, target string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if err = l.checkURL(ctx, u); err != nil {
		return err
	}

	l.logger.InfoContext(ctx, "Downloading word list", slog.String("url", rawURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %s", rawURL, resp.Status)
	}
	if resp.ContentLength > l.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, resp.ContentLength, l.maxBytes)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || !(strings.HasPrefix(mediaType, "text/") || mediaType == "application/octet-stream") {
			return fmt.Errorf("%w: %q", ErrContentType, ct)
		}
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if n > l.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDownload, rawURL)
	}

	if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to overwrite symlink %s", target)
	}
	if err = atomic.WriteFile(target, &buf); err != nil {
		return fmt.Errorf("failed to store word list: %w", err)
	}
	l.logger.InfoContext(ctx, "Word list downloaded",
		slog.String("url", rawURL),
		slog.String("path", target),
		slog.Int64("bytes", n),
	)
	return nil
}

// checkURL accepts only http(s) URLs whose host resolves exclusively to
// public unicast addresses.
func (l *Loader) checkURL(ctx context.Context, u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}
	if l.allowPrivate {
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrUnsafeURL, host)
	}

	addrs, err := l.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return fmt.Errorf("%w: cannot resolve %s", ErrUnsafeURL, host)
	}
	for _, addr := range addrs {
		if !isPublic(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeURL, host, addr.IP)
		}
	}
	return nil
}

func isPublic(ip net.IP) bool {
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}
