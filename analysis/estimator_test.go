package analysis

import (
	"math"
	"testing"
)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimateArea(t *testing.T) {
	testCases := []struct {
		name       string
		areaPixels int
		expected   float64
	}{
		{name: "Empty mask", areaPixels: 0, expected: 0},
		{name: "One square meter", areaPixels: 10000, expected: 1.0},
		{name: "Small patch", areaPixels: 500, expected: 0.05},
	}

	for _, testCase := range testCases {
		if got := EstimateArea(testCase.areaPixels); !floatEquals(got, testCase.expected) {
			t.Errorf("%s: EstimateArea(%d) = %f, expected %f", testCase.name, testCase.areaPixels, got, testCase.expected)
		}
	}
}

func TestEstimateDepth(t *testing.T) {
	testCases := []struct {
		name     string
		areaM2   float64
		expected float64
	}{
		{name: "Zero area gives base depth", areaM2: 0, expected: 0.05},
		{name: "Half square meter", areaM2: 0.5, expected: 0.3},
		{name: "Depth increase caps at one square meter", areaM2: 1.0, expected: 0.55},
		{name: "Large area stays capped", areaM2: 4.0, expected: 0.55},
	}

	for _, testCase := range testCases {
		if got := EstimateDepth(testCase.areaM2); !floatEquals(got, testCase.expected) {
			t.Errorf("%s: EstimateDepth(%f) = %f, expected %f", testCase.name, testCase.areaM2, got, testCase.expected)
		}
	}
}

func TestDetermineSeverity(t *testing.T) {
	testCases := []struct {
		name     string
		areaM2   float64
		expected string
	}{
		{name: "Tiny", areaM2: 0.01, expected: "low"},
		{name: "Just below medium", areaM2: 0.0999, expected: "low"},
		{name: "Medium boundary", areaM2: 0.1, expected: "medium"},
		{name: "Just below high", areaM2: 0.2999, expected: "medium"},
		{name: "High boundary", areaM2: 0.3, expected: "high"},
		{name: "Large", areaM2: 1.5, expected: "high"},
	}

	for _, testCase := range testCases {
		if got := DetermineSeverity(testCase.areaM2); got != testCase.expected {
			t.Errorf("%s: DetermineSeverity(%f) = %q, expected %q", testCase.name, testCase.areaM2, got, testCase.expected)
		}
	}
}

func TestEvaluate(t *testing.T) {
	// 3500 pixels -> 0.35 square meters -> high severity
	est := Evaluate(3500, 0.97)

	if !floatEquals(est.AreaM2, 0.35) {
		t.Errorf("Evaluate: expected area 0.35, got %f", est.AreaM2)
	}
	if !floatEquals(est.DepthMeters, 0.225) {
		t.Errorf("Evaluate: expected depth 0.225, got %f", est.DepthMeters)
	}
	if est.Severity != "high" {
		t.Errorf("Evaluate: expected severity high, got %q", est.Severity)
	}
	if !floatEquals(est.Confidence, 0.97) {
		t.Errorf("Evaluate: expected confidence 0.97, got %f", est.Confidence)
	}
}
