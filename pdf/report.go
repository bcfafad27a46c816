// Package pdf builds downloadable report documents for single detections.
package pdf

import (
	"bytes"
	"fmt"
	"os"

	"pothole-service/models"

	"github.com/go-pdf/fpdf"
)

// BuildReport renders one detection as an A4 PDF: a heading, the measured
// fields, and the detection photo when it is still on disk.
func BuildReport(p *models.Pothole) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()
	doc.SetFont("Arial", "B", 16)
	doc.CellFormat(0, 10, fmt.Sprintf("Pothole Report #%d", p.ID), "", 1, "", false, 0, "")

	doc.SetFont("Arial", "", 12)
	doc.Ln(5)

	line := func(format string, args ...interface{}) {
		doc.CellFormat(0, 8, tr(fmt.Sprintf(format, args...)), "", 1, "", false, 0, "")
	}
	line("Latitude: %v", p.Latitude)
	line("Longitude: %v", p.Longitude)
	line("Severity: %s", p.Severity)
	line("Area: %.2f m²", p.Area)
	line("Depth: %.2f m", p.DepthMeters)
	line("Confidence: %.1f%%", p.Confidence*100)
	line("Timestamp: %s", p.Timestamp.Format("2006-01-02 15:04:05"))
	doc.Ln(5)

	// The photo may have been cleaned up since the detection was stored
	if p.ImagePath != "" {
		if _, err := os.Stat(p.ImagePath); err == nil {
			doc.ImageOptions(p.ImagePath, doc.GetX(), doc.GetY(), 150, 0, true, fpdf.ImageOptions{}, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}
