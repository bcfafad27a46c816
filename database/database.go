package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pothole-service/config"
	"pothole-service/models"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

const pingMaxWait = 60 * time.Second

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// The database container may still be starting; ping with backoff
	deadline := time.Now().Add(pingMaxWait)
	waitInterval := time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		if time.Now().After(deadline) {
			db.Close()
			return nil, fmt.Errorf("database ping timeout after %v: %w", pingMaxWait, pingErr)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		time.Sleep(waitInterval)
		waitInterval *= 2
		if waitInterval > 30*time.Second {
			waitInterval = 30 * time.Second
		}
	}

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewWithDB wraps an already-open connection. Callers own its lifecycle.
func NewWithDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// InsertPothole stores a new detection and returns its id. The status column
// is left to its DEFAULT ('reported').
func (d *Database) InsertPothole(ctx context.Context, p *models.Pothole) (int64, error) {
	query := `
		INSERT INTO potholes (latitude, longitude, severity, area, depth_meters, image_path, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		p.Latitude, p.Longitude, p.Severity, p.Area, p.DepthMeters, p.ImagePath, p.Confidence)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pothole: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted pothole id: %w", err)
	}

	return id, nil
}

// GetPotholes retrieves all stored detections, newest first
func (d *Database) GetPotholes(ctx context.Context) ([]models.Pothole, error) {
	query := `
		SELECT id, latitude, longitude, severity, area, depth_meters, image_path, confidence, ts, status
		FROM potholes
		ORDER BY ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query potholes: %w", err)
	}
	defer rows.Close()

	var potholes []models.Pothole
	for rows.Next() {
		var p models.Pothole
		err := rows.Scan(
			&p.ID,
			&p.Latitude,
			&p.Longitude,
			&p.Severity,
			&p.Area,
			&p.DepthMeters,
			&p.ImagePath,
			&p.Confidence,
			&p.Timestamp,
			&p.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pothole: %w", err)
		}
		potholes = append(potholes, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating potholes: %w", err)
	}

	return potholes, nil
}

// GetPothole retrieves a single detection by id. Returns sql.ErrNoRows
// (wrapped) when the id is unknown.
func (d *Database) GetPothole(ctx context.Context, id int64) (*models.Pothole, error) {
	query := `
		SELECT id, latitude, longitude, severity, area, depth_meters, image_path, confidence, ts, status
		FROM potholes
		WHERE id = ?
	`

	var p models.Pothole
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Latitude,
		&p.Longitude,
		&p.Severity,
		&p.Area,
		&p.DepthMeters,
		&p.ImagePath,
		&p.Confidence,
		&p.Timestamp,
		&p.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pothole %d: %w", id, err)
	}

	return &p, nil
}

// GetPotholesSince retrieves detections with an id greater than the given one,
// oldest first. Used to catch up clients that reconnect.
func (d *Database) GetPotholesSince(ctx context.Context, sinceID int64) ([]models.Pothole, error) {
	query := `
		SELECT id, latitude, longitude, severity, area, depth_meters, image_path, confidence, ts, status
		FROM potholes
		WHERE id > ?
		ORDER BY id ASC
	`

	rows, err := d.db.QueryContext(ctx, query, sinceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query potholes since %d: %w", sinceID, err)
	}
	defer rows.Close()

	var potholes []models.Pothole
	for rows.Next() {
		var p models.Pothole
		err := rows.Scan(
			&p.ID,
			&p.Latitude,
			&p.Longitude,
			&p.Severity,
			&p.Area,
			&p.DepthMeters,
			&p.ImagePath,
			&p.Confidence,
			&p.Timestamp,
			&p.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pothole: %w", err)
		}
		potholes = append(potholes, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating potholes: %w", err)
	}

	return potholes, nil
}

// UpdatePotholeStatus updates the status column of one detection. An update
// that matches no row is not an error here; callers check existence first
// (MySQL also reports 0 affected rows for a no-op update).
func (d *Database) UpdatePotholeStatus(ctx context.Context, id int64, status string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE potholes SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update pothole %d status: %w", id, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 1 {
		log.Warnf("Status update for pothole %d affected %d rows", id, affected)
	}

	return nil
}

// CountBySeverity returns the number of stored detections per severity level
func (d *Database) CountBySeverity(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM potholes GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to count potholes by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts[severity] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating severity counts: %w", err)
	}

	return counts, nil
}
