package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pothole-service/config"
	"pothole-service/metrics"
	"pothole-service/middleware"
	"pothole-service/service"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found, using system environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Set log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Register Prometheus metrics
	metrics.Register()

	// Create service
	svc, err := service.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Start service
	if err := svc.Start(); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	// Setup HTTP server
	router := setupRouter(svc, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the service
	if err := svc.Stop(); err != nil {
		log.Errorf("Error stopping service: %v", err)
	}

	// Shutdown the HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(svc *service.Service, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	// Add gzip compression middleware
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Add logging middleware to show compression usage
	router.Use(func(c *gin.Context) {
		c.Next()

		contentLength := c.Writer.Header().Get("Content-Length")
		contentEncoding := c.Writer.Header().Get("Content-Encoding")
		log.Debugf("Response: %d %s %s, Content-Length: %s, Content-Encoding: %s",
			c.Writer.Status(), c.Request.Method, c.Request.URL.Path, contentLength, contentEncoding)
	})

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Get handlers
	h := svc.GetHandlers()

	// Detection uploads are rate limited per client IP
	detect := router.Group("/")
	detect.Use(middleware.RateLimitMiddleware(cfg.DetectRateLimit, time.Minute))
	{
		detect.POST("/detect", h.Detect)
	}

	// Dashboard and map pages
	router.GET("/", h.Dashboard)
	router.GET("/map", h.MapPage)
	router.GET("/map.png", h.MapImage)

	// Detection data
	router.GET("/potholes", h.GetPotholes)
	router.GET("/potholes.geojson", h.GetPotholesGeoJSON)
	router.PATCH("/potholes/:id/status", h.UpdateStatus)
	router.GET("/image/:filename", h.GetImage)
	router.GET("/export/:id", h.ExportPDF)

	// WebSocket endpoint for live detection events
	router.GET("/ws", h.ListenDetections)

	// Health check and Prometheus metrics
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
