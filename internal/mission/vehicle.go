package mission

import (
	"context"

	"FlightCheck/internal/drone"
)

// Vehicle is what the mission needs from a flight controller. Telemetry
// channels close when their context ends. *drone.Drone implements it.
type Vehicle interface {
	ConnectionState(ctx context.Context) <-chan drone.ConnectionState
	Version(ctx context.Context) (drone.Version, error)
	Battery(ctx context.Context) <-chan drone.Battery
	InAir(ctx context.Context) <-chan drone.InAirInfo
	Home(ctx context.Context) <-chan drone.Home
	Position(ctx context.Context) <-chan drone.Position
	Attitude(ctx context.Context) <-chan drone.Attitude

	Calibrate(ctx context.Context, kind drone.CalibrationKind) (<-chan drone.CalibrationProgress, error)

	SetFlightMode(ctx context.Context, mode drone.FlightMode) error
	Arm(ctx context.Context) error
	Takeoff(ctx context.Context) error
	GoTo(ctx context.Context, latitude, longitude, altitude, yaw float64) error
	Land(ctx context.Context) error
	Disarm(ctx context.Context) error
}

var _ Vehicle = (*drone.Drone)(nil)
