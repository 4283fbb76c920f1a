package mission

import (
	"context"
	"fmt"
	"sync"

	"FlightCheck/internal/drone"
)

// stream hands every subscriber all of its values up front, then stays open
// until the subscriber's context ends. A closed stream closes right after
// its values.
type stream[T any] struct {
	values []T
	closed bool
}

func (s stream[T]) subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, len(s.values))
	for _, v := range s.values {
		ch <- v
	}

	if s.closed {
		close(ch)
		return ch
	}

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

type goToCall struct {
	Latitude, Longitude, Altitude, Yaw float64
}

type fakeVehicle struct {
	mu    sync.Mutex
	calls []string

	connection stream[drone.ConnectionState]
	battery    stream[drone.Battery]
	inAir      stream[drone.InAirInfo]
	home       stream[drone.Home]
	position   stream[drone.Position]
	attitude   stream[drone.Attitude]

	version       drone.Version
	calibrations  map[drone.CalibrationKind][]drone.CalibrationProgress
	commandErrors map[string]error

	goTo  []goToCall
	modes []drone.FlightMode
}

func newFakeVehicle() *fakeVehicle {
	return &fakeVehicle{
		connection: stream[drone.ConnectionState]{values: []drone.ConnectionState{{Connected: true, UUID: 42, SystemID: 1}}},
		battery:    stream[drone.Battery]{values: []drone.Battery{{Percentage: 80, Voltage: 16.2}}},
		inAir: stream[drone.InAirInfo]{values: []drone.InAirInfo{
			{InAir: true, HasGPSFix: true},
			{InAir: false, HasGPSFix: true},
		}},
		home:          stream[drone.Home]{values: []drone.Home{{Latitude: 47.39, Longitude: 8.54, AbsoluteAltitude: 100}}},
		position:      stream[drone.Position]{values: []drone.Position{{Latitude: 47.3977, Longitude: 8.5456, AbsoluteAltitude: 488.1}}},
		attitude:      stream[drone.Attitude]{values: []drone.Attitude{{Roll: 1.5, Pitch: -2, Yaw: 90}}},
		version:       drone.Version{Firmware: "1.14.3"},
		calibrations:  map[drone.CalibrationKind][]drone.CalibrationProgress{},
		commandErrors: map[string]error{},
	}
}

func (f *fakeVehicle) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.commandErrors[call]
}

func (f *fakeVehicle) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeVehicle) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeVehicle) ConnectionState(ctx context.Context) <-chan drone.ConnectionState {
	return f.connection.subscribe(ctx)
}

func (f *fakeVehicle) Version(ctx context.Context) (drone.Version, error) {
	return f.version, f.record("version")
}

func (f *fakeVehicle) Battery(ctx context.Context) <-chan drone.Battery {
	return f.battery.subscribe(ctx)
}

func (f *fakeVehicle) InAir(ctx context.Context) <-chan drone.InAirInfo {
	return f.inAir.subscribe(ctx)
}

func (f *fakeVehicle) Home(ctx context.Context) <-chan drone.Home {
	return f.home.subscribe(ctx)
}

func (f *fakeVehicle) Position(ctx context.Context) <-chan drone.Position {
	return f.position.subscribe(ctx)
}

func (f *fakeVehicle) Attitude(ctx context.Context) <-chan drone.Attitude {
	return f.attitude.subscribe(ctx)
}

func (f *fakeVehicle) Calibrate(ctx context.Context, kind drone.CalibrationKind) (<-chan drone.CalibrationProgress, error) {
	if err := f.record("calibrate " + kind.String()); err != nil {
		return nil, err
	}

	updates, ok := f.calibrations[kind]
	if !ok {
		updates = []drone.CalibrationProgress{{HasProgress: true, Progress: 1}}
	}
	return stream[drone.CalibrationProgress]{values: updates, closed: true}.subscribe(ctx), nil
}

func (f *fakeVehicle) SetFlightMode(ctx context.Context, mode drone.FlightMode) error {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	return f.record(fmt.Sprintf("mode %s", mode))
}

func (f *fakeVehicle) Arm(ctx context.Context) error {
	return f.record("arm")
}

func (f *fakeVehicle) Takeoff(ctx context.Context) error {
	return f.record("takeoff")
}

func (f *fakeVehicle) GoTo(ctx context.Context, latitude, longitude, altitude, yaw float64) error {
	f.mu.Lock()
	f.goTo = append(f.goTo, goToCall{latitude, longitude, altitude, yaw})
	f.mu.Unlock()
	return f.record("goto")
}

func (f *fakeVehicle) Land(ctx context.Context) error {
	return f.record("land")
}

func (f *fakeVehicle) Disarm(ctx context.Context) error {
	return f.record("disarm")
}

var _ Vehicle = (*fakeVehicle)(nil)
