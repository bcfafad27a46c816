// Package mapimage renders static PNG overview maps of stored detections on
// OpenStreetMap tiles.
package mapimage

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"time"

	"github.com/fogleman/gg"
)

const (
	tileSize     = 256
	maxTiles     = 16
	markerRadius = 15

	// Kilometers per degree of latitude
	kmPerDegree = 111.32
)

// Marker is one detection to draw on the map
type Marker struct {
	Lat      float64
	Lon      float64
	Severity string
}

// ViewPort is a lat/lon bounding box
type ViewPort struct {
	LatMin float64
	LonMin float64
	LatMax float64
	LonMax float64
}

// Renderer fetches OSM tiles and composes marker overlays
type Renderer struct {
	tileURL   string
	userAgent string
	client    *http.Client
}

// NewRenderer creates a renderer against the public OSM tile server
func NewRenderer() *Renderer {
	return &Renderer{
		tileURL:   "https://tile.openstreetmap.org/%d/%d/%d.png",
		userAgent: "pothole-service/1.0",
		client:    &http.Client{Timeout: 8 * time.Second},
	}
}

// Render draws all markers on a tile mosaic that covers them. With no markers
// it renders a 1km box around the given center instead.
func (r *Renderer) Render(markers []Marker, centerLat, centerLon float64) ([]byte, error) {
	var vp *ViewPort
	if len(markers) == 0 {
		vp = &ViewPort{LatMin: centerLat, LatMax: centerLat, LonMin: centerLon, LonMax: centerLon}
	} else {
		vp = markersViewPort(markers)
	}
	expandToMinimum(vp, 1.0)

	zoom, xMin, xMax, yMin, yMax := fitZoom(vp)

	cols := xMax - xMin + 1
	rows := yMax - yMin + 1
	dst := image.NewRGBA(image.Rect(0, 0, tileSize*cols, tileSize*rows))

	dc := gg.NewContextForRGBA(dst)
	dc.SetLineWidth(2)

	for tileY := yMin; tileY <= yMax; tileY++ {
		for tileX := xMin; tileX <= xMax; tileX++ {
			img, err := r.fetchTile(tileX, tileY, zoom)
			if err != nil {
				return nil, err
			}
			dc.DrawImage(img, (tileX-xMin)*tileSize, (tileY-yMin)*tileSize)
		}
	}

	// Lat/lon extent of the composed mosaic
	imgBox := &ViewPort{
		LonMin: tile2lon(xMin, zoom),
		LonMax: tile2lon(xMax+1, zoom),
		LatMax: tile2lat(yMin, zoom),
		LatMin: tile2lat(yMax+1, zoom),
	}

	for _, m := range markers {
		x, y := project(m.Lat, m.Lon, imgBox, cols, rows)
		red, green, blue := severityColor(m.Severity)

		dc.SetRGBA255(red, green, blue, 200)
		dc.NewSubPath()
		dc.DrawCircle(x, y, markerRadius)
		dc.ClosePath()
		dc.FillPreserve()
		dc.SetRGBA255(red, green, blue, 255)
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fetchTile fetches one tile from OSM for given tile indices.
func (r *Renderer) fetchTile(x, y, zoom int) (image.Image, error) {
	tileURL := fmt.Sprintf(r.tileURL, zoom, x, y)

	req, err := http.NewRequest("GET", tileURL, nil)
	if err != nil {
		return nil, err
	}

	// The public tile server rejects requests without an identifying agent
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch tile: %s", resp.Status)
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, err
	}

	return img, nil
}

// severityColor maps a detection severity to its marker color. High is red,
// medium is orange, everything else is green.
func severityColor(severity string) (r, g, b int) {
	switch severity {
	case "high":
		return 255, 0, 0
	case "medium":
		return 255, 165, 0
	default:
		return 0, 128, 0
	}
}

// markersViewPort computes the lat/lon bounding box over all markers
func markersViewPort(markers []Marker) *ViewPort {
	vp := &ViewPort{LatMin: 90.0, LonMin: 180.0, LatMax: -90.0, LonMax: -180.0}
	for _, m := range markers {
		if m.Lat < vp.LatMin {
			vp.LatMin = m.Lat
		}
		if m.Lat > vp.LatMax {
			vp.LatMax = m.Lat
		}
		if m.Lon < vp.LonMin {
			vp.LonMin = m.Lon
		}
		if m.Lon > vp.LonMax {
			vp.LonMax = m.Lon
		}
	}
	return vp
}

// expandToMinimum grows the viewport so it spans at least minKm kilometers in
// both directions. A single marker or an empty map still gets a usable extent.
func expandToMinimum(vp *ViewPort, minKm float64) {
	centerLat := (vp.LatMin + vp.LatMax) / 2

	latDegrees := minKm / kmPerDegree
	lonDegrees := minKm / (kmPerDegree * math.Cos(centerLat*math.Pi/180.0))

	if span := vp.LatMax - vp.LatMin; span < latDegrees {
		pad := (latDegrees - span) / 2
		vp.LatMin -= pad
		vp.LatMax += pad
	}
	if span := vp.LonMax - vp.LonMin; span < lonDegrees {
		pad := (lonDegrees - span) / 2
		vp.LonMin -= pad
		vp.LonMax += pad
	}
}

// fitZoom finds the highest zoom level whose tile cover of the viewport stays
// within maxTiles
func fitZoom(vp *ViewPort) (zoom, xMin, xMax, yMin, yMax int) {
	zoom = 19
	for z := zoom; z > 0; z-- {
		xMin, yMax = latLngToTile(vp.LatMin, vp.LonMin, z)
		xMax, yMin = latLngToTile(vp.LatMax, vp.LonMax, z)
		tiles := (xMax - xMin + 1) * (yMax - yMin + 1)
		if tiles <= maxTiles {
			zoom = z
			break
		}
	}
	return
}

// project converts a lat/lon to pixel coordinates inside the composed mosaic
func project(lat, lon float64, imgBox *ViewPort, cols, rows int) (x, y float64) {
	x = (lon - imgBox.LonMin) / (imgBox.LonMax - imgBox.LonMin) * tileSize * float64(cols)
	y = (imgBox.LatMax - lat) / (imgBox.LatMax - imgBox.LatMin) * tileSize * float64(rows)
	return
}

// latLngToTile converts latitude/longitude to OSM tile indices
func latLngToTile(lat, lon float64, zoom int) (x, y int) {
	n := math.Pow(2, float64(zoom))
	x = int((lon + 180.0) / 360.0 * n)
	y = int((1.0 - math.Log(math.Tan(lat*math.Pi/180.0)+1.0/math.Cos(lat*math.Pi/180.0))/math.Pi) / 2.0 * n)
	return
}

// tile2lon converts a tile x coordinate at zoom level z to longitude.
func tile2lon(x, z int) float64 {
	n := math.Exp2(float64(z))
	return float64(x)/n*360.0 - 180.0
}

// tile2lat converts a tile y coordinate at zoom level z to latitude.
func tile2lat(y, z int) float64 {
	n := math.Exp2(float64(z))
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return latRad * 180 / math.Pi
}
