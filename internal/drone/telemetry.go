package drone

import "fmt"

// ConnectionState reports whether an autopilot heartbeat is being received.
type ConnectionState struct {
	Connected bool
	UUID      uint64
	SystemID  uint8
}

// Version is the autopilot software version from AUTOPILOT_VERSION.
type Version struct {
	Firmware string
	OS       string
	UID      uint64
}

// Battery percentage is 0-100.
type Battery struct {
	Percentage float32
	Voltage    float32
}

type InAirInfo struct {
	InAir     bool
	HasGPSFix bool
}

// Home is the home position. AbsoluteAltitude is metres above mean sea level.
type Home struct {
	Latitude         float64
	Longitude        float64
	AbsoluteAltitude float64
}

type Position struct {
	Latitude         float64
	Longitude        float64
	AbsoluteAltitude float64
	RelativeAltitude float64
}

// Attitude angles are in degrees.
type Attitude struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// CalibrationProgress is one update from a running calibration. The last
// update of a failed calibration carries Err.
type CalibrationProgress struct {
	HasProgress   bool
	Progress      float32
	HasStatusText bool
	StatusText    string
	Err           error
}

func (p CalibrationProgress) String() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("calibration error: %v", p.Err)
	case p.HasProgress && p.HasStatusText:
		return fmt.Sprintf("progress %.0f%%: %s", p.Progress*100, p.StatusText)
	case p.HasProgress:
		return fmt.Sprintf("progress %.0f%%", p.Progress*100)
	default:
		return p.StatusText
	}
}

func decodeSwVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24&0xff, v>>16&0xff, v>>8&0xff)
}
