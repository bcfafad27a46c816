package models

import (
	"time"
)

// Pothole represents one detection row from the potholes table
type Pothole struct {
	ID          int64     `json:"id" db:"id"`
	Latitude    float64   `json:"latitude" db:"latitude"`
	Longitude   float64   `json:"longitude" db:"longitude"`
	Severity    string    `json:"severity" db:"severity"`
	Area        float64   `json:"area" db:"area"`
	DepthMeters float64   `json:"depth_meters" db:"depth_meters"`
	ImagePath   string    `json:"image_path" db:"image_path"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Timestamp   time.Time `json:"timestamp" db:"ts"`
	Status      string    `json:"status" db:"status"`
}

// DetectionResult is the response body for a successful detection
type DetectionResult struct {
	Success     bool    `json:"success"`
	PotholeID   int64   `json:"pothole_id"`
	Severity    string  `json:"severity"`
	AreaM2      float64 `json:"area_m2"`
	DepthMeters float64 `json:"depth_meters"`
	Confidence  float64 `json:"confidence"`
	ImageURL    string  `json:"image_url"`
}

// PotholeEvent is the payload pushed to WebSocket clients and RabbitMQ
// consumers when a new detection is stored
type PotholeEvent struct {
	ID          int64     `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Severity    string    `json:"severity"`
	Area        float64   `json:"area"`
	DepthMeters float64   `json:"depth_meters"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// BroadcastMessage represents a message sent to WebSocket clients
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	SamLoaded        bool   `json:"sam_loaded"`
	Service          string `json:"service"`
	Version          string `json:"version"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	LastBroadcastID  int64  `json:"last_broadcast_id"`
}

// StatusUpdateRequest is the body for PATCH /potholes/:id/status
type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}
