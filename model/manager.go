package model

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrCorruptModel   = errors.New("model file corrupt")
	ErrDownloadFailed = errors.New("model download failed")
)

// Manager resolves, validates, and caches model assets under a local
// directory. Assets are immutable once validated; the only mutation is the
// download itself, which is exclusive per size.
type Manager struct {
	dir     string
	client  *http.Client
	baseURL string // overrides catalog URLs when set (tests)
	entries []Descriptor

	mu    sync.Mutex
	locks map[Size]*sync.Mutex
}

// ManagerOption tweaks a Manager.
type ManagerOption func(*Manager)

// WithBaseURL points downloads at a different asset host.
func WithBaseURL(base string) ManagerOption {
	return func(m *Manager) { m.baseURL = base }
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.client = c }
}

// WithCatalog substitutes the static catalog (tests use tiny fixtures).
func WithCatalog(entries []Descriptor) ManagerOption {
	return func(m *Manager) { m.entries = entries }
}

func NewManager(dir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:     dir,
		client:  &http.Client{Timeout: 30 * time.Minute},
		entries: Catalog(),
		locks:   make(map[Size]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lookup(size Size) (Descriptor, error) {
	for _, d := range m.entries {
		if d.Size == size {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("unknown model size %q", size)
}

func (m *Manager) sizeLock(size Size) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.locks[size]
	if l == nil {
		l = &sync.Mutex{}
		m.locks[size] = l
	}
	return l
}

// Path returns where the asset for size lives (or would live) on disk.
func (m *Manager) Path(size Size) (string, error) {
	d, err := m.lookup(size)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, d.FileName), nil
}

// EnsureAvailable returns the local path of a checksum-valid model file,
// downloading it first if missing. A file that fails validation is
// re-downloaded exactly once before giving up. Downloads happen ahead of
// offline operation, never mid-transcription.
func (m *Manager) EnsureAvailable(ctx context.Context, size Size) (string, error) {
	d, err := m.lookup(size)
	if err != nil {
		return "", err
	}

	lock := m.sizeLock(size)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(m.dir, d.FileName)
	if _, err := os.Stat(path); err == nil {
		if err := m.validate(path, d); err == nil {
			return path, nil
		}
		// Corrupt on disk: discard and fall through to one fresh download.
		os.Remove(path)
	}

	if err := m.download(ctx, d, path); err != nil {
		return "", err
	}
	if err := m.validate(path, d); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: downloaded asset failed validation: %v", ErrDownloadFailed, err)
	}
	return path, nil
}

// Validate recomputes the digest of the file at path against the catalog
// entry for size.
func (m *Manager) Validate(path string, size Size) error {
	d, err := m.lookup(size)
	if err != nil {
		return err
	}
	return m.validate(path, d)
}

func (m *Manager) validate(path string, d Descriptor) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if d.ByteSize > 0 && info.Size() != d.ByteSize {
		return fmt.Errorf("%w: size %d, want %d", ErrCorruptModel, info.Size(), d.ByteSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	defer f.Close()

	hasher := sha1.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != d.SHA1 {
		return fmt.Errorf("%w: digest %s, want %s", ErrCorruptModel, got[:12], d.SHA1[:12])
	}
	return nil
}

func (m *Manager) assetURL(d Descriptor) string {
	if m.baseURL != "" {
		return m.baseURL + "/" + d.FileName
	}
	return d.URL
}

// download fetches into a temp file on the same filesystem and renames into
// place, so a crashed download never leaves a partial file at the final path.
func (m *Manager) download(ctx context.Context, d Descriptor, path string) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	tmpFile, err := os.CreateTemp(m.dir, ".murmur-model-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // cleanup on any error path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.assetURL(d), nil)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tmpFile.Close()
		return fmt.Errorf("%w: %s", ErrDownloadFailed, resp.Status)
	}
	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}
