package drone

import (
	"strings"

	"github.com/pkg/errors"

	derrors "FlightCheck/internal/errors"
)

// FlightMode is a PX4 piloting mode, sent with MAV_CMD_DO_SET_MODE as a main/sub custom mode pair.
type FlightMode uint8

const (
	FLIGHT_MODE_MANUAL FlightMode = iota + 1
	FLIGHT_MODE_ALTITUDE
	FLIGHT_MODE_POSITION
	FLIGHT_MODE_ACRO
	FLIGHT_MODE_STABILIZED
	FLIGHT_MODE_OFFBOARD
	FLIGHT_MODE_HOLD
	FLIGHT_MODE_MISSION
	FLIGHT_MODE_TAKEOFF
	FLIGHT_MODE_LAND
	FLIGHT_MODE_RETURN
)

// PX4 main modes
const (
	px4MainManual     = 1
	px4MainAltctl     = 2
	px4MainPosctl     = 3
	px4MainAuto       = 4
	px4MainAcro       = 5
	px4MainOffboard   = 6
	px4MainStabilized = 7
)

// PX4 auto sub modes
const (
	px4AutoTakeoff = 2
	px4AutoLoiter  = 3
	px4AutoMission = 4
	px4AutoRTL     = 5
	px4AutoLand    = 6
)

var flightModes = map[FlightMode]struct {
	name      string
	main, sub uint8
}{
	FLIGHT_MODE_MANUAL:     {"manual", px4MainManual, 0},
	FLIGHT_MODE_ALTITUDE:   {"altitude", px4MainAltctl, 0},
	FLIGHT_MODE_POSITION:   {"position", px4MainPosctl, 0},
	FLIGHT_MODE_ACRO:       {"acro", px4MainAcro, 0},
	FLIGHT_MODE_STABILIZED: {"stabilized", px4MainStabilized, 0},
	FLIGHT_MODE_OFFBOARD:   {"offboard", px4MainOffboard, 0},
	FLIGHT_MODE_HOLD:       {"hold", px4MainAuto, px4AutoLoiter},
	FLIGHT_MODE_MISSION:    {"mission", px4MainAuto, px4AutoMission},
	FLIGHT_MODE_TAKEOFF:    {"takeoff", px4MainAuto, px4AutoTakeoff},
	FLIGHT_MODE_LAND:       {"landing", px4MainAuto, px4AutoLand},
	FLIGHT_MODE_RETURN:     {"return", px4MainAuto, px4AutoRTL},
}

// ParseFlightMode looks a mode up by its piloting name ("landing", "hold", ...).
func ParseFlightMode(name string) (FlightMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for mode, m := range flightModes {
		if m.name == name {
			return mode, nil
		}
	}

	return 0, errors.Wrapf(derrors.ErrUnknownFlightMode, "%q", name)
}

func (m FlightMode) String() string {
	if fm, ok := flightModes[m]; ok {
		return fm.name
	}
	return "unknown"
}

func (m FlightMode) custom() (main, sub uint8, ok bool) {
	fm, ok := flightModes[m]
	return fm.main, fm.sub, ok
}
