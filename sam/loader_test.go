package sam

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pothole-service/config"
)

func newTestLoader(checkpointPath, checkpointURL string) *Loader {
	return &Loader{
		checkpointPath: checkpointPath,
		checkpointURL:  checkpointURL,
		modelType:      "vit_b",
		downloadClient: &http.Client{Timeout: 5 * time.Second},
		loadClient:     &http.Client{Timeout: 5 * time.Second},
		backoff:        func(int) time.Duration { return 0 },
	}
}

func TestDownloadBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{8, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := DownloadBackoff(tt.attempt); got != tt.want {
			t.Errorf("DownloadBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestEnsureCheckpointSkipsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sam.pth")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 2048), 0o644); err != nil {
		t.Fatalf("Failed to write checkpoint fixture: %v", err)
	}

	// The URL is unroutable; a download attempt would fail the test.
	l := newTestLoader(path, "http://127.0.0.1:1/checkpoint")

	if err := l.EnsureCheckpoint(make(chan struct{})); err != nil {
		t.Fatalf("EnsureCheckpoint should accept an existing checkpoint: %v", err)
	}
}

func TestEnsureCheckpointDownloads(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7a}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "weights", "sam.pth")
	l := newTestLoader(path, server.URL)

	if err := l.EnsureCheckpoint(make(chan struct{})); err != nil {
		t.Fatalf("EnsureCheckpoint failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Checkpoint was not written: %v", err)
	}
	if info.Size() != int64(len(payload)) {
		t.Errorf("Expected %d bytes on disk, got %d", len(payload), info.Size())
	}
}

func TestEnsureCheckpointReplacesTruncatedFile(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7a}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sam.pth")
	// A leftover partial download is smaller than the minimum usable size.
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("Failed to write truncated fixture: %v", err)
	}

	l := newTestLoader(path, server.URL)

	if err := l.EnsureCheckpoint(make(chan struct{})); err != nil {
		t.Fatalf("EnsureCheckpoint failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Checkpoint was not written: %v", err)
	}
	if info.Size() != int64(len(payload)) {
		t.Errorf("Expected truncated file replaced with %d bytes, got %d", len(payload), info.Size())
	}
}

func TestEnsureCheckpointGivesUpAfterRetries(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sam.pth")
	l := newTestLoader(path, server.URL)

	if err := l.EnsureCheckpoint(make(chan struct{})); err == nil {
		t.Fatal("EnsureCheckpoint should fail when every attempt fails")
	}
	if got := atomic.LoadInt32(&requests); got != maxDownloadAttempts {
		t.Errorf("Expected %d download attempts, got %d", maxDownloadAttempts, got)
	}
}

func TestEnsureCheckpointAbortsOnStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sam.pth")
	l := newTestLoader(path, server.URL)
	l.backoff = func(int) time.Duration { return time.Hour }

	stop := make(chan struct{})
	close(stop)

	done := make(chan error, 1)
	go func() { done <- l.EnsureCheckpoint(stop) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("EnsureCheckpoint should report the abort as an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("EnsureCheckpoint did not honor the stop channel")
	}
}

func TestFetchCheckpointRejectsShortBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("too small"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "sam.pth")
	l := newTestLoader(path, server.URL)

	if err := l.fetchCheckpoint(); err == nil {
		t.Fatal("fetchCheckpoint should reject a body below the minimum size")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("A rejected download must not leave a checkpoint file behind")
	}
}

func TestRunLoadsModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sam.pth")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 2048), 0o644); err != nil {
		t.Fatalf("Failed to write checkpoint fixture: %v", err)
	}

	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/load" {
			t.Errorf("Expected path /load, got %s", r.URL.Path)
		}

		var req loadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode load request: %v", err)
		}
		if req.CheckpointPath != path {
			t.Errorf("Expected checkpoint path %s, got %s", path, req.CheckpointPath)
		}
		if req.ModelType != "vit_b" {
			t.Errorf("Expected model type vit_b, got %s", req.ModelType)
		}

		json.NewEncoder(w).Encode(loadResponse{Status: "loaded"})
	}))
	defer sidecar.Close()

	l := NewLoader(&config.Config{
		SamCheckpointPath: path,
		SamCheckpointURL:  "http://127.0.0.1:1/checkpoint",
		SamServiceURL:     sidecar.URL,
		SamModelType:      "vit_b",
	})

	if l.IsReady() {
		t.Fatal("Loader must not report ready before Run")
	}

	l.Run(make(chan struct{}))

	if !l.IsReady() {
		t.Error("Loader should report ready after a successful load")
	}
}

func TestRunStaysNotReadyOnLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sam.pth")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, 2048), 0o644); err != nil {
		t.Fatalf("Failed to write checkpoint fixture: %v", err)
	}

	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loadResponse{Status: "error", Message: "bad checkpoint"})
	}))
	defer sidecar.Close()

	l := newTestLoader(path, "http://127.0.0.1:1/checkpoint")
	l.serviceURL = sidecar.URL

	l.Run(make(chan struct{}))

	if l.IsReady() {
		t.Error("Loader must not report ready when the sidecar load fails")
	}
}
