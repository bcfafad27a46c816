package service

import (
	"fmt"
	"os"
	"sync"

	"pothole-service/config"
	"pothole-service/database"
	"pothole-service/handlers"
	"pothole-service/rabbitmq"
	"pothole-service/sam"
	ws "pothole-service/websocket"

	"github.com/apex/log"
)

// Service wires the detection pipeline together and owns its lifecycle
type Service struct {
	config    *config.Config
	db        *database.Database
	hub       *ws.Hub
	loader    *sam.Loader
	samClient *sam.Client
	publisher *rabbitmq.Publisher
	handlers  *handlers.Handlers

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates a new pothole detection service
func NewService(cfg *config.Config) (*Service, error) {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub()
	loader := sam.NewLoader(cfg)
	samClient := sam.NewClient(cfg.SamServiceURL, cfg.SamTimeout)

	// Event publishing is optional: without a broker the service still
	// detects and broadcasts, it just has no downstream queue.
	var publisher *rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		if err != nil {
			log.Warnf("RabbitMQ unavailable, continuing without event publishing: %v", err)
			publisher = nil
		}
	}

	service := &Service{
		config:    cfg,
		db:        db,
		hub:       hub,
		loader:    loader,
		samClient: samClient,
		publisher: publisher,
		handlers:  handlers.NewHandlers(cfg, db, hub, loader, samClient, publisher),
		stopChan:  make(chan struct{}),
	}

	return service, nil
}

// Start starts the service
func (s *Service) Start() error {
	log.Info("Starting pothole detection service...")

	if err := s.db.InitSchema(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Start the WebSocket hub
	go s.hub.Run()

	// Fetch the checkpoint and load the model in the background so the
	// HTTP endpoints come up immediately
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loader.Run(s.stopChan)
	}()

	log.Info("Pothole detection service started")
	return nil
}

// Stop stops the service gracefully
func (s *Service) Stop() error {
	log.Info("Stopping pothole detection service...")

	close(s.stopChan)
	s.wg.Wait()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Errorf("Error closing RabbitMQ connection: %v", err)
		}
	}

	if err := s.db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	log.Info("Pothole detection service stopped")
	return nil
}

// GetHandlers returns the HTTP handlers
func (s *Service) GetHandlers() *handlers.Handlers {
	return s.handlers
}

// GetStats returns the connected client count and the last broadcast ID
func (s *Service) GetStats() (int, int64) {
	return s.hub.GetStats()
}
