package utils

import (
	"math"
	"testing"
)

func TestQuaternionToEulerDegreesIdentity(t *testing.T) {
	roll, pitch, yaw := QuaternionToEulerDegrees([4]float32{1, 0, 0, 0})
	if roll != 0 || pitch != 0 || yaw != 0 {
		t.Errorf("Expected level attitude, got roll=%v pitch=%v yaw=%v", roll, pitch, yaw)
	}
}

func TestQuaternionToEulerDegreesSingleAxis(t *testing.T) {
	c := func(deg float64) float32 { return float32(math.Cos(deg * math.Pi / 360)) }
	s := func(deg float64) float32 { return float32(math.Sin(deg * math.Pi / 360)) }

	cases := []struct {
		name             string
		q                [4]float32
		roll, pitch, yaw float64
	}{
		{"roll 10", [4]float32{c(10), s(10), 0, 0}, 10, 0, 0},
		{"pitch -20", [4]float32{c(-20), 0, s(-20), 0}, 0, -20, 0},
		{"yaw 90", [4]float32{c(90), 0, 0, s(90)}, 0, 0, 90},
		{"yaw -135", [4]float32{c(-135), 0, 0, s(-135)}, 0, 0, -135},
	}

	for _, tt := range cases {
		roll, pitch, yaw := QuaternionToEulerDegrees(tt.q)
		if math.Abs(roll-tt.roll) > 1e-3 || math.Abs(pitch-tt.pitch) > 1e-3 || math.Abs(yaw-tt.yaw) > 1e-3 {
			t.Errorf("%s: expected %v/%v/%v, got %v/%v/%v", tt.name, tt.roll, tt.pitch, tt.yaw, roll, pitch, yaw)
		}
	}
}

func TestQuaternionGimbalLockClamps(t *testing.T) {
	// 90 degrees nose up
	q := [4]float32{float32(math.Sqrt2 / 2), 0, float32(math.Sqrt2 / 2), 0}
	_, pitch, _ := QuaternionToEulerDegrees(q)
	if math.Abs(pitch-90) > 0.05 {
		t.Errorf("Expected pitch 90, got %v", pitch)
	}
}
