package common

import (
	"math"

	"golang.org/x/exp/constraints"
)

// degE7 is the fixed point scale MAVLink uses for latitude and longitude.
const degE7 = 1e7

func DegreesToRadians[T constraints.Float](degrees T) T {
	return degrees * T(math.Pi) / 180
}

func RadiansToDegrees[T constraints.Float](radians T) T {
	return radians * 180 / T(math.Pi)
}

// FromE7 converts a degE7 integer into degrees.
func FromE7[T constraints.Integer](v T) float64 {
	return float64(v) / degE7
}

// ToE7 converts degrees into a degE7 integer, rounding to the nearest unit.
func ToE7[T constraints.Float](degrees T) int32 {
	return int32(math.Round(float64(degrees) * degE7))
}

// Millimetres converts a MAVLink millimetre altitude into metres.
func Millimetres[T constraints.Integer](v T) float64 {
	return float64(v) / 1000
}
