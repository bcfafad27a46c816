package sam

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	_ "image/png"

	"github.com/apex/log"
)

// Client handles communication with the SAM segmentation sidecar
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// SegmentRequest represents the request to the segmentation sidecar
type SegmentRequest struct {
	Image      string `json:"image"`
	PointX     int    `json:"point_x"`
	PointY     int    `json:"point_y"`
	PointLabel int    `json:"point_label"`
}

// SegmentResponse represents the response from the segmentation sidecar
type SegmentResponse struct {
	Status           string  `json:"status"`
	Mask             string  `json:"mask"`
	Score            float64 `json:"score"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	Message          string  `json:"message"`
}

// NewClient creates a new segmentation sidecar client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Segment sends an image and one prompt point to the sidecar and returns the
// best predicted mask together with its model score. The mask comes back as a
// base64 PNG where nonzero pixels belong to the detection.
func (c *Client) Segment(imageData []byte, pointX, pointY int) (image.Image, float64, error) {
	request := SegmentRequest{
		Image:      base64.StdEncoding.EncodeToString(imageData),
		PointX:     pointX,
		PointY:     pointY,
		PointLabel: 1,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/segment"
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Infof("Sending image to segmentation sidecar: %s, image size: %d bytes, point: (%d, %d)",
		url, len(imageData), pointX, pointY)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request to segmentation sidecar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("segmentation sidecar returned status %d", resp.StatusCode)
	}

	var response SegmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Status != "completed" {
		if response.Message != "" {
			return nil, 0, fmt.Errorf("segmentation sidecar returned status %q: %s", response.Status, response.Message)
		}
		return nil, 0, fmt.Errorf("segmentation sidecar returned status %q", response.Status)
	}

	maskData, err := base64.StdEncoding.DecodeString(response.Mask)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode mask: %w", err)
	}

	mask, _, err := image.Decode(bytes.NewReader(maskData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode mask image: %w", err)
	}

	log.Infof("Segmentation completed: score %.3f, mask %dx%d, sidecar time %.0fms",
		response.Score, mask.Bounds().Dx(), mask.Bounds().Dy(), response.ProcessingTimeMs)

	return mask, response.Score, nil
}
