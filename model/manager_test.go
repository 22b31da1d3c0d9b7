package model

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var testAsset = []byte("not a real ggml file, but stable test bytes")

func testCatalog() []Descriptor {
	sum := sha1.Sum(testAsset)
	return []Descriptor{{
		Size:          SizeTiny,
		FileName:      "ggml-tiny.bin",
		ByteSize:      int64(len(testAsset)),
		SHA1:          hex.EncodeToString(sum[:]),
		ResidentBytes: 273 * mib,
	}}
}

func testManager(t *testing.T, hits *atomic.Int32) (*Manager, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Write(testAsset)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	m := NewManager(dir, WithBaseURL(srv.URL), WithCatalog(testCatalog()))
	return m, dir
}

func TestEnsureDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	m, dir := testManager(t, &hits)

	path, err := m.EnsureAvailable(context.Background(), SizeTiny)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "ggml-tiny.bin") {
		t.Errorf("unexpected path %s", path)
	}

	// Second call hits the cache, not the network.
	if _, err := m.EnsureAvailable(context.Background(), SizeTiny); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	m, _ := testManager(t, nil)
	path, err := m.EnsureAvailable(context.Background(), SizeTiny)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(path, SizeTiny); err != nil {
		t.Fatalf("fresh download invalid: %v", err)
	}

	// Flip one byte without changing the length.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.Validate(path, SizeTiny); !errors.Is(err, ErrCorruptModel) {
		t.Fatalf("got %v, want ErrCorruptModel", err)
	}
}

// A corrupt file on disk triggers exactly one re-download; if that download
// is also corrupt, Ensure gives up rather than looping.
func TestEnsureRetriesCorruptOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("garbage that will never hash right"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(dir, WithBaseURL(srv.URL), WithCatalog(testCatalog()))

	// Seed a corrupt file at the final path.
	path := filepath.Join(dir, "ggml-tiny.bin")
	if err := os.WriteFile(path, []byte("corrupt seed"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := m.EnsureAvailable(context.Background(), SizeTiny)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("got %v, want ErrDownloadFailed", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("re-download attempted %d times, want exactly 1", n)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("corrupt download left at final path")
	}
}

func TestEnsureServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewManager(t.TempDir(), WithBaseURL(srv.URL), WithCatalog(testCatalog()))
	if _, err := m.EnsureAvailable(context.Background(), SizeTiny); !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("got %v, want ErrDownloadFailed", err)
	}
}

func TestEnsureUnknownSize(t *testing.T) {
	m, _ := testManager(t, nil)
	if _, err := m.EnsureAvailable(context.Background(), Size("enormous")); err == nil {
		t.Fatal("unknown size accepted")
	}
}

func TestRecommendForMemory(t *testing.T) {
	const gib = 1 << 30
	cases := []struct {
		available int64
		want      Size
	}{
		{0, SizeTiny},
		{300 * mib, SizeTiny},
		{1 * gib, SizeBase},
		{2 * gib, SizeSmall},
		{4 * gib, SizeMedium},
		{8 * gib, SizeLarge},
	}
	for _, c := range cases {
		if got := RecommendForMemory(c.available); got != c.want {
			t.Errorf("RecommendForMemory(%d) = %s, want %s", c.available, got, c.want)
		}
	}
}

func TestRecommendIsDeterministicAtBoundary(t *testing.T) {
	// Exactly at the headroom boundary the smaller model wins.
	boundary := int64(float64(273*mib) * 1.5)
	if got := RecommendForMemory(boundary); got != SizeTiny {
		t.Errorf("boundary resolved to %s, want tiny", got)
	}
}
