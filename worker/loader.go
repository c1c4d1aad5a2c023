package worker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultMaxModuleSize    = 256 << 20 // 256MB
	DefaultDownloadTimeout  = 5 * time.Minute
	wasmMagic               = "\x00asm"
	downloadCacheFileSuffix = ".wasm"
)

var ErrNotWasm = errors.New("not a wasm module")

// loader fetches interpreter modules from a bootstrap location: an http(s)
// URL, a file:// URL or a plain path. Downloads are kept in cacheDir when set.
type loader struct {
	client   *http.Client
	cacheDir string
	maxSize  int64
}

func (l *loader) fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse bootstrap location: %w", err)
	}

	var data []byte
	switch u.Scheme {
	case "http", "https":
		data, err = l.download(ctx, location)
	case "file":
		data, err = l.readFile(u.Path)
	case "":
		data, err = l.readFile(location)
	default:
		return nil, fmt.Errorf("unsupported bootstrap scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(data, []byte(wasmMagic)) {
		return nil, fmt.Errorf("%s: %w", location, ErrNotWasm)
	}
	return data, nil
}

func (l *loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open module: %w", err)
	}
	defer f.Close()
	return l.readAll(f)
}

func (l *loader) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("module exceeds max size of %d bytes", l.maxSize)
	}
	return data, nil
}

func (l *loader) download(ctx context.Context, location string) ([]byte, error) {
	cached := l.cachePath(location)
	if cached != "" {
		if data, err := l.readFile(cached); err == nil {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download module: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download module: %s", resp.Status)
	}

	data, err := l.readAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if cached != "" && bytes.HasPrefix(data, []byte(wasmMagic)) {
		// A failed cache write only costs a re-download next time.
		_ = writeFileAtomic(cached, data)
	}
	return data, nil
}

// cachePath names the download cache entry for location.
func (l *loader) cachePath(location string) string {
	if l.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(location))
	return filepath.Join(l.cacheDir, hex.EncodeToString(sum[:])+downloadCacheFileSuffix)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
