// Package analysis converts a segmentation mask into road-damage estimates.
// The constants are crude single-camera calibration values, kept in one place
// so they can be tuned against field measurements.
package analysis

const (
	// pixelsPerMeter is the assumed image resolution at road level.
	pixelsPerMeter = 100

	// Depth model: a fixed base plus a component growing with area, capped.
	baseDepthMeters  = 0.05
	depthPerSquareM  = 0.5
	maxDepthIncrease = 0.5

	// Severity thresholds in square meters.
	mediumAreaThreshold = 0.1
	highAreaThreshold   = 0.3
)

// Estimate holds the derived measurements for one detected pothole
type Estimate struct {
	AreaM2      float64
	DepthMeters float64
	Severity    string
	Confidence  float64
}

// EstimateArea converts a mask pixel count to square meters
func EstimateArea(areaPixels int) float64 {
	return float64(areaPixels) / (pixelsPerMeter * pixelsPerMeter)
}

// EstimateDepth derives a depth estimate from the surface area
func EstimateDepth(areaM2 float64) float64 {
	increase := areaM2 * depthPerSquareM
	if increase > maxDepthIncrease {
		increase = maxDepthIncrease
	}
	return baseDepthMeters + increase
}

// DetermineSeverity classifies a pothole by its surface area
func DetermineSeverity(areaM2 float64) string {
	if areaM2 < mediumAreaThreshold {
		return "low"
	}
	if areaM2 < highAreaThreshold {
		return "medium"
	}
	return "high"
}

// Evaluate derives all estimates for a mask with the given pixel count and
// model score
func Evaluate(areaPixels int, score float64) Estimate {
	areaM2 := EstimateArea(areaPixels)
	return Estimate{
		AreaM2:      areaM2,
		DepthMeters: EstimateDepth(areaM2),
		Severity:    DetermineSeverity(areaM2),
		Confidence:  score,
	}
}
