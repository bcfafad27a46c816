package sam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"pothole-service/config"
	"pothole-service/metrics"

	"github.com/apex/log"
)

const (
	maxDownloadAttempts = 5

	// A checkpoint smaller than this is a failed or partial download.
	minCheckpointSize = 1024
)

// Loader downloads the SAM checkpoint and asks the sidecar to load it. The
// service keeps serving while loading runs in the background; only detect
// requests require readiness.
type Loader struct {
	checkpointPath string
	checkpointURL  string
	serviceURL     string
	modelType      string

	downloadClient *http.Client
	loadClient     *http.Client

	ready   atomic.Bool
	backoff func(attempt int) time.Duration
}

// loadRequest represents the load request to the segmentation sidecar
type loadRequest struct {
	CheckpointPath string `json:"checkpoint_path"`
	ModelType      string `json:"model_type"`
}

// loadResponse represents the load response from the segmentation sidecar
type loadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewLoader creates a new checkpoint loader
func NewLoader(cfg *config.Config) *Loader {
	return &Loader{
		checkpointPath: cfg.SamCheckpointPath,
		checkpointURL:  cfg.SamCheckpointURL,
		serviceURL:     cfg.SamServiceURL,
		modelType:      cfg.SamModelType,
		// Checkpoints run to hundreds of megabytes; the download gets its
		// own generous timeout separate from sidecar calls.
		downloadClient: &http.Client{Timeout: 10 * time.Minute},
		loadClient:     &http.Client{Timeout: 2 * time.Minute},
		backoff:        DownloadBackoff,
	}
}

// IsReady reports whether the model is loaded and detect requests can be served
func (l *Loader) IsReady() bool {
	return l.ready.Load()
}

// DownloadBackoff returns the wait before the next download attempt:
// exponential, capped at 30 seconds
func DownloadBackoff(attempt int) time.Duration {
	secs := 1 << attempt
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// Run performs the one-time model initialization. Meant to be started as a
// goroutine; stop aborts waits between download attempts.
func (l *Loader) Run(stop <-chan struct{}) {
	if err := l.EnsureCheckpoint(stop); err != nil {
		log.Errorf("Failed to download SAM checkpoint after retries. SAM will not be loaded: %v", err)
		return
	}

	if err := l.requestLoad(); err != nil {
		log.Errorf("SAM initialization error: %v", err)
		return
	}

	l.ready.Store(true)
	metrics.ModelReady.Set(1)
	log.Info("SAM loaded successfully!")
}

// EnsureCheckpoint makes sure a usable checkpoint file exists, downloading it
// with bounded retries when it is missing or truncated
func (l *Loader) EnsureCheckpoint(stop <-chan struct{}) error {
	if l.checkpointUsable() {
		log.Infof("SAM checkpoint already present at %s", l.checkpointPath)
		return nil
	}

	log.Infof("Downloading SAM checkpoint from %s...", l.checkpointURL)

	var lastErr error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if lastErr = l.fetchCheckpoint(); lastErr == nil {
			log.Info("SAM checkpoint downloaded successfully!")
			return nil
		}

		metrics.CheckpointDownloadRetriesTotal.Inc()
		wait := l.backoff(attempt)
		log.Errorf("Attempt %d/%d failed: %v. Retrying in %v...", attempt, maxDownloadAttempts, lastErr, wait)

		select {
		case <-stop:
			return fmt.Errorf("checkpoint download aborted: %w", lastErr)
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("checkpoint download failed after %d attempts: %w", maxDownloadAttempts, lastErr)
}

// checkpointUsable reports whether the checkpoint file exists and is not a
// truncated download
func (l *Loader) checkpointUsable() bool {
	info, err := os.Stat(l.checkpointPath)
	return err == nil && info.Size() >= minCheckpointSize
}

// fetchCheckpoint downloads the checkpoint to a temporary file and moves it
// into place once complete
func (l *Loader) fetchCheckpoint() error {
	resp, err := l.downloadClient.Get(l.checkpointURL)
	if err != nil {
		return fmt.Errorf("failed to fetch checkpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checkpoint server returned status %d", resp.StatusCode)
	}

	dir := filepath.Dir(l.checkpointPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "sam-checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if written < minCheckpointSize {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint download truncated: got %d bytes", written)
	}

	if err := os.Rename(tmpName, l.checkpointPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}

	return nil
}

// requestLoad asks the sidecar to load the checkpoint into memory
func (l *Loader) requestLoad() error {
	request := loadRequest{
		CheckpointPath: l.checkpointPath,
		ModelType:      l.modelType,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal load request: %w", err)
	}

	url := l.serviceURL + "/load"
	log.Infof("Requesting model load from segmentation sidecar: %s (%s)", url, l.modelType)

	resp, err := l.loadClient.Post(url, "application/json", bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to send load request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("segmentation sidecar returned status %d", resp.StatusCode)
	}

	var response loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode load response: %w", err)
	}

	if response.Status != "loaded" {
		if response.Message != "" {
			return fmt.Errorf("segmentation sidecar returned status %q: %s", response.Status, response.Message)
		}
		return fmt.Errorf("segmentation sidecar returned status %q", response.Status)
	}

	return nil
}
