package mission

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"FlightCheck/internal/drone"
	derrors "FlightCheck/internal/errors"
	"FlightCheck/internal/storage"
)

const (
	// lowBatteryPercent triggers the landing branch of the battery check
	// when a sample is strictly below it.
	lowBatteryPercent = 20

	// takeoffDelay is a fixed wait after the takeoff command. It does not
	// look at telemetry.
	takeoffDelay = 5 * time.Second

	// flyAltitudeOffset is added to the home altitude for the go-to target.
	flyAltitudeOffset = 10.0

	// The go-to point is a placeholder: the vehicle is always sent to 0,0
	// with heading 0, whatever its actual position.
	placeholderLatitude  = 0.0
	placeholderLongitude = 0.0
	placeholderHeading   = 0.0
)

// Timeouts bound the telemetry waits of each step. Zero waits forever.
type Timeouts struct {
	Connect     time.Duration
	Battery     time.Duration
	Calibration time.Duration
	GPSFix      time.Duration
	Home        time.Duration
	Airborne    time.Duration
	Landed      time.Duration
	Position    time.Duration
}

// Recorder persists the outcome of a run. *storage.SqliteStore implements it.
type Recorder interface {
	StartRun(ctx context.Context, variant, address string, config any) (int64, error)
	RecordStep(ctx context.Context, runID int64, step storage.Step) error
	RecordPosition(ctx context.Context, runID int64, sample storage.PositionSample) error
	FinishRun(ctx context.Context, runID int64, runErr error) error
}

var _ Recorder = (*storage.SqliteStore)(nil)

// StepError reports which step stopped the mission.
type StepError struct {
	Step StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// WithOutput sets where operator progress text goes. Defaults to stdout.
func WithOutput(w io.Writer) func(*Runner) {
	return func(r *Runner) {
		r.out = w
	}
}

func WithLogger(logger *zap.SugaredLogger) func(*Runner) {
	return func(r *Runner) {
		r.log = logger
	}
}

// WithRecorder records every run into rec. address and config are stored
// with the run for reference.
func WithRecorder(rec Recorder, address string, config any) func(*Runner) {
	return func(r *Runner) {
		r.recorder = rec
		r.address = address
		r.config = config
	}
}

func WithTimeouts(t Timeouts) func(*Runner) {
	return func(r *Runner) {
		r.timeouts = t
	}
}

// WithRequireInAir controls whether the home point waits for the vehicle to
// be in the air as well as having a GPS fix.
func WithRequireInAir(require bool) func(*Runner) {
	return func(r *Runner) {
		r.requireInAir = require
	}
}

// WithPositionSamples sets how many samples the final position report
// prints. Zero reports until the position stream ends.
func WithPositionSamples(n int) func(*Runner) {
	return func(r *Runner) {
		r.positionSamples = n
	}
}

// WithBatteryWindow keeps sampling the battery for d after the first sample.
func WithBatteryWindow(d time.Duration) func(*Runner) {
	return func(r *Runner) {
		r.batteryWindow = d
	}
}

// WithSleeper replaces the fixed post-takeoff delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) func(*Runner) {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

type missionState struct {
	runID        int64
	homeAltitude float64
}

// Runner executes a Plan against a Vehicle, one step after another.
type Runner struct {
	vehicle Vehicle
	plan    Plan

	out      io.Writer
	log      *zap.SugaredLogger
	recorder Recorder
	address  string
	config   any

	timeouts        Timeouts
	batteryWindow   time.Duration
	requireInAir    bool
	positionSamples int
	sleep           func(ctx context.Context, d time.Duration) error
	now             func() time.Time
}

func NewRunner(vehicle Vehicle, plan Plan, options ...func(*Runner)) *Runner {
	r := Runner{
		vehicle:         vehicle,
		plan:            plan,
		out:             os.Stdout,
		log:             zap.NewNop().Sugar(),
		requireInAir:    true,
		positionSamples: 1,
		sleep:           sleepContext,
		now:             time.Now,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Run executes every enabled step in order and stops at the first failure,
// which is returned as a *StepError.
func (r *Runner) Run(ctx context.Context) error {
	start := r.now()
	state := &missionState{}
	r.startRecording(ctx, state)

	var runErr error
	for _, step := range r.plan.Steps {
		stepStart := r.now()
		if !step.Enabled {
			r.log.Debugf("Skipping step %s", step.Name)
			r.recordStep(ctx, state, step.Name, storage.StepSkipped, nil, stepStart)
			continue
		}

		r.log.Infof("Running step %s", step.Name)
		err := r.runStep(ctx, step.Name, state)
		if err != nil {
			r.recordStep(ctx, state, step.Name, storage.StepFailed, err, stepStart)
			runErr = &StepError{Step: step.Name, Err: err}
			break
		}
		r.recordStep(ctx, state, step.Name, storage.StepOK, nil, stepStart)
	}

	r.finishRecording(ctx, state, runErr)

	if runErr != nil {
		r.log.Errorf("Mission aborted: %v", runErr)
		return runErr
	}

	r.printf("-- Mission finished in %ss", humanize.FtoaWithDigits(r.now().Sub(start).Seconds(), 1))
	return nil
}

func (r *Runner) runStep(ctx context.Context, name StepName, state *missionState) error {
	switch name {
	case StepConnect:
		return r.connect(ctx)
	case StepBatteryCheck:
		return r.batteryCheck(ctx)
	case StepCalibrateSensors:
		return r.calibrateSensors(ctx)
	case StepHomePoint:
		return r.homePoint(ctx)
	case StepHomeAltitude:
		return r.homeAltitude(ctx, state)
	case StepArm:
		return r.arm(ctx)
	case StepTakeoff:
		return r.takeoff(ctx)
	case StepConfirmAirborne:
		return r.confirmAirborne(ctx)
	case StepGoTo:
		return r.goTo(ctx, state)
	case StepLand:
		return r.land(ctx)
	case StepConfirmLanded:
		return r.confirmLanded(ctx)
	case StepPositionReport:
		return r.positionReport(ctx, state)
	case StepDisarm:
		return r.disarm(ctx)
	}
	return fmt.Errorf("%w: step %s", derrors.ErrUnimplemented, name)
}

func (r *Runner) connect(ctx context.Context) error {
	r.printf("Waiting for drone to connect...")

	state, err := waitFor(ctx, r.timeouts.Connect, r.vehicle.ConnectionState, func(s drone.ConnectionState) bool {
		return s.Connected
	})
	if err != nil {
		return fmt.Errorf("waiting for connection: %w", err)
	}

	versionCtx, cancel := withTimeout(ctx, r.timeouts.Connect)
	defer cancel()

	info, err := r.vehicle.Version(versionCtx)
	if err != nil {
		if versionCtx.Err() != nil {
			err = waitError(ctx, r.timeouts.Connect)
		}
		return fmt.Errorf("reading version: %w", err)
	}

	uuid := state.UUID
	if info.UID != 0 {
		uuid = info.UID
	}

	r.printf("Drone discovered with UUID: %d", uuid)
	r.printf("Firmware version: %s", info.Firmware)
	return nil
}

// batteryCheck prints battery samples for the battery window after the
// first one and lands on the first sample below the threshold. With no
// window the first sample decides. It runs before takeoff, so its landing
// branch lands a vehicle that is still on the ground.
func (r *Runner) batteryCheck(ctx context.Context) error {
	waitCtx, cancel := withTimeout(ctx, r.timeouts.Battery)
	defer cancel()

	samples := r.vehicle.Battery(waitCtx)
	sampled := false
	var window <-chan time.Time

	done := func() error {
		if sampled && ctx.Err() == nil {
			return nil
		}
		if waitCtx.Err() != nil {
			return fmt.Errorf("sampling battery: %w", waitError(ctx, r.timeouts.Battery))
		}
		return fmt.Errorf("sampling battery: %w", derrors.ErrStreamClosed)
	}

	for {
		select {
		case battery, ok := <-samples:
			if !ok {
				return done()
			}

			r.printf("Battery: %s%%", humanize.Ftoa(float64(battery.Percentage)))
			if battery.Percentage < lowBatteryPercent {
				return r.lowBattery(ctx, battery)
			}

			if !sampled {
				sampled = true
				if r.batteryWindow <= 0 {
					return nil
				}
				timer := time.NewTimer(r.batteryWindow)
				defer timer.Stop()
				window = timer.C
			}
		case <-window:
			return nil
		case <-waitCtx.Done():
			return done()
		}
	}
}

func (r *Runner) lowBattery(ctx context.Context, battery drone.Battery) error {
	r.printf("Battery is low, shutting down")
	if err := r.vehicle.SetFlightMode(ctx, drone.FLIGHT_MODE_LAND); err != nil {
		return fmt.Errorf("switching to landing mode: %w", err)
	}
	if err := r.vehicle.Land(ctx); err != nil {
		return fmt.Errorf("landing: %w", err)
	}

	return fmt.Errorf("%w: %s%%", derrors.ErrLowBattery, humanize.Ftoa(float64(battery.Percentage)))
}

var calibrationLabels = map[drone.CalibrationKind]struct{ start, finish string }{
	drone.CalibrationGyro:          {"gyroscope", "Gyroscope"},
	drone.CalibrationAccelerometer: {"accelerometer", "Accelerometer"},
	drone.CalibrationMagnetometer:  {"magnetometer", "Magnetometer"},
	drone.CalibrationLevelHorizon:  {"board level horizon", "Board level"},
	drone.CalibrationHomePoint:     {"home point", "Home point"},
}

func (r *Runner) calibrateSensors(ctx context.Context) error {
	for _, kind := range []drone.CalibrationKind{
		drone.CalibrationGyro,
		drone.CalibrationAccelerometer,
		drone.CalibrationMagnetometer,
		drone.CalibrationLevelHorizon,
	} {
		if err := r.calibrate(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// calibrate prints every progress update until the calibration's stream is
// exhausted.
func (r *Runner) calibrate(ctx context.Context, kind drone.CalibrationKind) error {
	label := calibrationLabels[kind]
	r.printf("-- Starting %s calibration", label.start)

	calCtx, cancel := withTimeout(ctx, r.timeouts.Calibration)
	defer cancel()

	updates, err := r.vehicle.Calibrate(calCtx, kind)
	if err != nil {
		return fmt.Errorf("starting %s calibration: %w", kind, err)
	}

	for update := range updates {
		if update.Err != nil {
			if calCtx.Err() != nil {
				return fmt.Errorf("%s calibration: %w", kind, waitError(ctx, r.timeouts.Calibration))
			}
			return fmt.Errorf("%s calibration: %w", kind, update.Err)
		}
		r.printf("%s", update)
	}
	if calCtx.Err() != nil {
		return fmt.Errorf("%s calibration: %w", kind, waitError(ctx, r.timeouts.Calibration))
	}

	r.printf("-- %s calibration finished", label.finish)
	return nil
}

func (r *Runner) homePoint(ctx context.Context) error {
	r.printf("Waiting for drone to have a GPS fix...")

	if _, err := waitFor(ctx, r.timeouts.GPSFix, r.vehicle.InAir, func(info drone.InAirInfo) bool {
		return info.HasGPSFix && (info.InAir || !r.requireInAir)
	}); err != nil {
		return fmt.Errorf("waiting for gps fix: %w", err)
	}

	return r.calibrate(ctx, drone.CalibrationHomePoint)
}

func (r *Runner) homeAltitude(ctx context.Context, state *missionState) error {
	r.printf("Fetching amsl altitude at home point")

	home, err := waitFor(ctx, r.timeouts.Home, r.vehicle.Home, func(drone.Home) bool {
		return true
	})
	if err != nil {
		return fmt.Errorf("reading home position: %w", err)
	}

	state.homeAltitude = home.AbsoluteAltitude
	r.printf("-- Home altitude: %s", humanize.FtoaWithDigits(home.AbsoluteAltitude, 3))
	return nil
}

func (r *Runner) arm(ctx context.Context) error {
	r.printf("-- Arming")
	if err := r.vehicle.Arm(ctx); err != nil {
		return fmt.Errorf("arming: %w", err)
	}
	r.printf("-- Armed")
	return nil
}

func (r *Runner) takeoff(ctx context.Context) error {
	r.printf("-- Taking off")
	if err := r.vehicle.Takeoff(ctx); err != nil {
		return fmt.Errorf("taking off: %w", err)
	}

	if err := r.sleep(ctx, takeoffDelay); err != nil {
		return err
	}
	r.printf("-- Taking off finished")
	return nil
}

func (r *Runner) confirmAirborne(ctx context.Context) error {
	if _, err := waitFor(ctx, r.timeouts.Airborne, r.vehicle.InAir, func(info drone.InAirInfo) bool {
		return info.InAir
	}); err != nil {
		return fmt.Errorf("waiting for airborne: %w", err)
	}
	r.printf("-- Drone is flying")
	return nil
}

func (r *Runner) goTo(ctx context.Context, state *missionState) error {
	r.printf("-- Going to a point")

	altitude := state.homeAltitude + flyAltitudeOffset
	r.log.Warnf("Go-to uses placeholder coordinates %v,%v heading %v at %vm", placeholderLatitude, placeholderLongitude, placeholderHeading, altitude)

	if err := r.vehicle.GoTo(ctx, placeholderLatitude, placeholderLongitude, altitude, placeholderHeading); err != nil {
		return fmt.Errorf("going to point: %w", err)
	}
	return nil
}

func (r *Runner) land(ctx context.Context) error {
	r.printf("-- Landing")
	if err := r.vehicle.Land(ctx); err != nil {
		return fmt.Errorf("landing: %w", err)
	}
	return nil
}

func (r *Runner) confirmLanded(ctx context.Context) error {
	if _, err := waitFor(ctx, r.timeouts.Landed, r.vehicle.InAir, func(info drone.InAirInfo) bool {
		return !info.InAir
	}); err != nil {
		return fmt.Errorf("waiting for landing: %w", err)
	}
	r.printf("-- Drone is landed")
	return nil
}

func (r *Runner) positionReport(ctx context.Context, state *missionState) error {
	r.printf("-- Last position point")

	posCtx, cancel := withTimeout(ctx, r.timeouts.Position)
	defer cancel()

	positions := r.vehicle.Position(posCtx)
	attitudes := r.vehicle.Attitude(posCtx)
	var attitude drone.Attitude

	count := 0
	for pos := range positions {
		attitude = latest(attitudes, attitude)

		r.printf("Latitude: %s", humanize.FtoaWithDigits(pos.Latitude, 7))
		r.printf("Longitude: %s", humanize.FtoaWithDigits(pos.Longitude, 7))
		r.printf("Altitude: %s", humanize.FtoaWithDigits(pos.AbsoluteAltitude, 3))
		r.log.Debugf("Attitude roll %.1f pitch %.1f yaw %.1f", attitude.Roll, attitude.Pitch, attitude.Yaw)
		r.recordPosition(ctx, state, pos, attitude)

		count++
		if r.positionSamples > 0 && count >= r.positionSamples {
			return nil
		}
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case r.positionSamples == 0:
		// unbounded report ends with its stream or its time window
		return nil
	case posCtx.Err() != nil:
		return fmt.Errorf("reading position: %w", waitError(ctx, r.timeouts.Position))
	}
	return fmt.Errorf("reading position: %w", derrors.ErrStreamClosed)
}

func (r *Runner) disarm(ctx context.Context) error {
	r.printf("-- Disarming")
	if err := r.vehicle.Disarm(ctx); err != nil {
		return fmt.Errorf("disarming: %w", err)
	}
	r.printf("-- Disarmed")
	return nil
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *Runner) startRecording(ctx context.Context, state *missionState) {
	if r.recorder == nil {
		return
	}

	runID, err := r.recorder.StartRun(context.WithoutCancel(ctx), r.plan.Variant, r.address, r.config)
	if err != nil {
		r.log.Warnf("Flight recorder disabled: %v", err)
		r.recorder = nil
		return
	}
	state.runID = runID
}

func (r *Runner) recordStep(ctx context.Context, state *missionState, name StepName, status string, stepErr error, started time.Time) {
	if r.recorder == nil {
		return
	}

	step := storage.Step{Name: string(name), Status: status, StartedAt: started, FinishedAt: r.now()}
	if stepErr != nil {
		step.Error = stepErr.Error()
	}
	if err := r.recorder.RecordStep(context.WithoutCancel(ctx), state.runID, step); err != nil {
		r.log.Warnf("Recording step %s: %v", name, err)
	}
}

func (r *Runner) recordPosition(ctx context.Context, state *missionState, pos drone.Position, attitude drone.Attitude) {
	if r.recorder == nil {
		return
	}

	sample := storage.PositionSample{
		Timestamp: r.now(),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Altitude:  pos.AbsoluteAltitude,
		Roll:      attitude.Roll,
		Pitch:     attitude.Pitch,
		Yaw:       attitude.Yaw,
	}
	if err := r.recorder.RecordPosition(context.WithoutCancel(ctx), state.runID, sample); err != nil {
		r.log.Warnf("Recording position: %v", err)
	}
}

func (r *Runner) finishRecording(ctx context.Context, state *missionState, runErr error) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.FinishRun(context.WithoutCancel(ctx), state.runID, runErr); err != nil {
		r.log.Warnf("Recording run result: %v", err)
	}
}

// latest drains ch without blocking and returns its newest value, or last
// when nothing is pending.
func latest[T any](ch <-chan T, last T) T {
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return last
			}
			last = v
		default:
			return last
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLowBattery reports whether err stopped the mission at the battery check.
func IsLowBattery(err error) bool {
	return stderrors.Is(err, derrors.ErrLowBattery)
}
