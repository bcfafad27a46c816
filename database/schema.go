package database

import (
	"fmt"

	"github.com/apex/log"
)

// InitSchema creates the necessary database tables if they don't exist
func (d *Database) InitSchema() error {
	log.Info("Initializing pothole-service database schema...")

	potholesTableSQL := `
	CREATE TABLE IF NOT EXISTS potholes(
		id INT NOT NULL AUTO_INCREMENT,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		severity VARCHAR(16) NOT NULL,
		area DOUBLE NOT NULL,
		depth_meters DOUBLE NOT NULL,
		image_path VARCHAR(255) NOT NULL,
		confidence DOUBLE NOT NULL,
		ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		status VARCHAR(32) NOT NULL DEFAULT 'reported',
		PRIMARY KEY (id),
		INDEX severity_index (severity),
		INDEX ts_index (ts)
	)`

	if _, err := d.db.Exec(potholesTableSQL); err != nil {
		return fmt.Errorf("failed to create potholes table: %w", err)
	}
	log.Info("Potholes table created/verified")

	return nil
}
