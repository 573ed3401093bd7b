package utils

import (
	"math"
	"testing"
)

// ============================================================
// Тесты RoundToPrecision / RoundToLotSize
// ============================================================

func TestRoundToPrecision(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int
		expected float64
	}{
		{"round down 3 decimals", 0.123456, 3, 0.123},
		{"round down 1 decimal", 1.999, 1, 1.9},
		{"whole numbers", 100.5, 0, 100.0},
		{"exact value", 0.123, 3, 0.123},
		{"zero value", 0, 4, 0},
		{"negative decimals passthrough", 0.123456, -1, 0.123456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToPrecision(tt.value, tt.decimals)
			if math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("RoundToPrecision(%v, %d) = %v, want %v",
					tt.value, tt.decimals, got, tt.expected)
			}
		})
	}
}

func TestRoundToLotSize(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		lotSize  float64
		expected float64
	}{
		{"exact match", 0.123, 0.001, 0.123},
		{"round down", 0.123456, 0.001, 0.123},
		{"whole numbers", 100.5, 1.0, 100.0},
		{"zero lotSize passthrough", 0.123, 0, 0.123},
		{"negative lotSize passthrough", 0.123, -0.001, 0.123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToLotSize(tt.value, tt.lotSize)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RoundToLotSize(%v, %v) = %v, want %v",
					tt.value, tt.lotSize, got, tt.expected)
			}
		})
	}
}

func TestDecimalsOfStep(t *testing.T) {
	tests := []struct {
		step     float64
		expected int
	}{
		{0.001, 3},
		{0.01, 2},
		{0.1, 1},
		{1, 0},
		{10, 0},
		{0.00000001, 8},
		{0, 8},
		{-1, 8},
	}

	for _, tt := range tests {
		if got := DecimalsOfStep(tt.step); got != tt.expected {
			t.Errorf("DecimalsOfStep(%v) = %d, want %d", tt.step, got, tt.expected)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Errorf("Clamp(5,0,10) = %v", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Errorf("Clamp(-1,0,10) = %v", got)
	}
	if got := Clamp(11, 0, 10); got != 10 {
		t.Errorf("Clamp(11,0,10) = %v", got)
	}
}
