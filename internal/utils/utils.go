package utils

import (
	"math"

	units "FlightCheck/internal/common"
)

// QuaternionToEulerDegrees converts a MAVLink attitude quaternion (w, x, y, z)
// into roll, pitch and yaw in degrees.
func QuaternionToEulerDegrees(q [4]float32) (roll, pitch, yaw float64) {
	w, x, y, z := float64(q[0]), float64(q[1]), float64(q[2]), float64(q[3])

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		// gimbal lock, clamp to +-90
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return units.RadiansToDegrees(roll), units.RadiansToDegrees(pitch), units.RadiansToDegrees(yaw)
}
