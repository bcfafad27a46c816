package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pothole-service/analysis"
	"pothole-service/config"
	"pothole-service/database"
	"pothole-service/imageproc"
	"pothole-service/mapimage"
	"pothole-service/metrics"
	"pothole-service/models"
	"pothole-service/pdf"
	"pothole-service/rabbitmq"
	"pothole-service/sam"
	"pothole-service/version"
	ws "pothole-service/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	geojson "github.com/paulmach/go.geojson"
)

const serviceName = "pothole-service"

// Map fallback when no detection has been stored yet
const (
	defaultCenterLat = 40.7128
	defaultCenterLon = -74.0060
)

// Handlers contains all HTTP handlers for the service
type Handlers struct {
	cfg       *config.Config
	db        *database.Database
	hub       *ws.Hub
	loader    *sam.Loader
	samClient *sam.Client
	publisher *rabbitmq.Publisher
	renderer  *mapimage.Renderer
}

// NewHandlers creates a new handlers instance. The publisher may be nil when
// event publishing is disabled.
func NewHandlers(cfg *config.Config, db *database.Database, hub *ws.Hub, loader *sam.Loader, samClient *sam.Client, publisher *rabbitmq.Publisher) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        db,
		hub:       hub,
		loader:    loader,
		samClient: samClient,
		publisher: publisher,
		renderer:  mapimage.NewRenderer(),
	}
}

// HealthCheck returns the service health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	connectedClients, lastBroadcastID := h.hub.GetStats()
	info := version.Get(serviceName)

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "ok",
		SamLoaded:        h.loader.IsReady(),
		Service:          info.Service,
		Version:          info.Version,
		Timestamp:        time.Now().Format(time.RFC3339),
		ConnectedClients: connectedClients,
		LastBroadcastID:  lastBroadcastID,
	})
}

// Detect runs the full detection pipeline for one uploaded photo: validate,
// normalize, segment at the center prompt, estimate, annotate, store and
// notify subscribers.
func (h *Handlers) Detect(c *gin.Context) {
	start := time.Now()

	if !h.loader.IsReady() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SAM not loaded yet"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
		return
	}
	if fileHeader.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image selected"})
		return
	}
	if maxBytes := int64(h.cfg.MaxUploadMB) << 20; fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Image exceeds %dMB limit", h.cfg.MaxUploadMB)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}

	latStr := c.PostForm("latitude")
	lonStr := c.PostForm("longitude")

	latitude, err := parseCoordinate(latStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid latitude"})
		return
	}
	longitude, err := parseCoordinate(lonStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid longitude"})
		return
	}
	if latStr == "" && lonStr == "" {
		if gpsLat, gpsLon, ok := imageproc.ExtractGPS(data); ok {
			latitude, longitude = gpsLat, gpsLon
			log.Infof("Using EXIF GPS position: %f, %f", gpsLat, gpsLon)
		}
	}

	img, err := imageproc.Normalize(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image"})
		return
	}

	normalized, err := imageproc.EncodeJPEG(img)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process image"})
		return
	}

	bounds := img.Bounds()
	mask, score, err := h.samClient.Segment(normalized, bounds.Dx()/2, bounds.Dy()/2)
	if err != nil {
		metrics.SegmentationErrorsTotal.Inc()
		log.Errorf("Segmentation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Segmentation failed"})
		return
	}

	maskPixels := imageproc.CountMaskPixels(mask)
	if maskPixels == 0 {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	estimate := analysis.Evaluate(maskPixels, score)

	annotated, err := imageproc.EncodeJPEG(imageproc.OverlayMask(img, mask))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process image"})
		return
	}

	filename := fmt.Sprintf("pothole_%s.jpg", time.Now().Format("20060102_150405"))
	imagePath := filepath.Join(h.cfg.UploadDir, filename)
	if err := os.WriteFile(imagePath, annotated, 0o644); err != nil {
		log.Errorf("Failed to store annotated image: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
		return
	}

	pothole := &models.Pothole{
		Latitude:    latitude,
		Longitude:   longitude,
		Severity:    estimate.Severity,
		Area:        estimate.AreaM2,
		DepthMeters: estimate.DepthMeters,
		ImagePath:   imagePath,
		Confidence:  estimate.Confidence,
	}
	id, err := h.db.InsertPothole(c.Request.Context(), pothole)
	if err != nil {
		log.Errorf("Failed to insert pothole: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store detection"})
		return
	}

	event := models.PotholeEvent{
		ID:          id,
		Latitude:    latitude,
		Longitude:   longitude,
		Severity:    estimate.Severity,
		Area:        estimate.AreaM2,
		DepthMeters: estimate.DepthMeters,
		Confidence:  estimate.Confidence,
		Timestamp:   time.Now(),
	}
	h.hub.BroadcastPothole(event)

	if h.publisher != nil {
		if err := h.publisher.PublishPothole(event); err != nil {
			log.Errorf("Failed to publish detection event: %v", err)
		}
	}

	metrics.DetectionsTotal.WithLabelValues(estimate.Severity).Inc()
	metrics.DetectDurationSeconds.Observe(time.Since(start).Seconds())

	c.JSON(http.StatusOK, models.DetectionResult{
		Success:     true,
		PotholeID:   id,
		Severity:    estimate.Severity,
		AreaM2:      estimate.AreaM2,
		DepthMeters: estimate.DepthMeters,
		Confidence:  estimate.Confidence,
		ImageURL:    "/image/" + filename,
	})
}

// parseCoordinate parses an optional form coordinate; absent means 0.0
func parseCoordinate(value string) (float64, error) {
	if value == "" {
		return 0.0, nil
	}
	return strconv.ParseFloat(value, 64)
}

// GetPotholes lists all stored detections, newest first
func (h *Handlers) GetPotholes(c *gin.Context) {
	potholes, err := h.db.GetPotholes(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to fetch potholes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch potholes"})
		return
	}
	if potholes == nil {
		potholes = []models.Pothole{}
	}
	c.JSON(http.StatusOK, potholes)
}

// GetPotholesGeoJSON lists all stored detections as a GeoJSON FeatureCollection
func (h *Handlers) GetPotholesGeoJSON(c *gin.Context) {
	potholes, err := h.db.GetPotholes(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to fetch potholes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch potholes"})
		return
	}

	fc := geojson.NewFeatureCollection()
	for i := range potholes {
		p := &potholes[i]
		f := geojson.NewPointFeature([]float64{p.Longitude, p.Latitude})
		f.SetProperty("id", p.ID)
		f.SetProperty("severity", p.Severity)
		f.SetProperty("area", p.Area)
		f.SetProperty("depth_meters", p.DepthMeters)
		f.SetProperty("confidence", p.Confidence)
		f.SetProperty("status", p.Status)
		f.SetProperty("timestamp", p.Timestamp.Format(time.RFC3339))
		fc.AddFeature(f)
	}
	c.JSON(http.StatusOK, fc)
}

// GetImage serves a stored annotated photo from the upload directory
func (h *Handlers) GetImage(c *gin.Context) {
	// Base strips any path components smuggled into the parameter
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.cfg.UploadDir, filename)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	c.File(path)
}

// ExportPDF generates a downloadable report for one detection
func (h *Handlers) ExportPDF(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pothole ID"})
		return
	}

	pothole, err := h.db.GetPothole(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Pothole not found"})
			return
		}
		log.Errorf("Failed to fetch pothole %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pothole"})
		return
	}

	report, err := pdf.BuildReport(pothole)
	if err != nil {
		log.Errorf("Failed to build PDF for pothole %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate PDF"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=pothole_report_%d.pdf", id))
	c.Data(http.StatusOK, "application/pdf", report)
}

// UpdateStatus moves a detection through the repair workflow
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pothole ID"})
		return
	}

	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status is required"})
		return
	}
	if !validStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	// MySQL reports zero affected rows for no-op updates too, so existence is
	// checked with a read instead
	if _, err := h.db.GetPothole(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Pothole not found"})
			return
		}
		log.Errorf("Failed to fetch pothole %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pothole"})
		return
	}

	if err := h.db.UpdatePotholeStatus(c.Request.Context(), id, req.Status); err != nil {
		log.Errorf("Failed to update status for pothole %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func validStatus(status string) bool {
	switch status {
	case "reported", "in_progress", "fixed":
		return true
	}
	return false
}

// MapImage renders all detections as a static PNG map
func (h *Handlers) MapImage(c *gin.Context) {
	potholes, err := h.db.GetPotholes(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to fetch potholes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch potholes"})
		return
	}

	markers := make([]mapimage.Marker, 0, len(potholes))
	for _, p := range potholes {
		markers = append(markers, mapimage.Marker{Lat: p.Latitude, Lon: p.Longitude, Severity: p.Severity})
	}

	img, err := h.renderer.Render(markers, defaultCenterLat, defaultCenterLon)
	if err != nil {
		log.Errorf("Failed to render map image: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to render map"})
		return
	}

	c.Data(http.StatusOK, "image/png", img)
}

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now
		return true
	},
}

// ListenDetections handles WebSocket connections for live detection events
func (h *Handlers) ListenDetections(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	log.Info("WebSocket connection established")
}
