package drone

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	units "FlightCheck/internal/common"
	derrors "FlightCheck/internal/errors"
	"FlightCheck/internal/utils"
)

const (
	defaultSystemID         = 10
	defaultCommandTimeout   = 5 * time.Second
	defaultCommandRetries   = 5
	defaultHeartbeatTimeout = 3 * time.Second

	autopilotComponent = 1 // MAV_COMP_ID_AUTOPILOT1

	minHeartbeatCheck = time.Millisecond
)

var errTemporarilyRejected = stderrors.New("temporarily rejected")

type messageWriter interface {
	WriteMessageAll(message.Message) error
}

type options struct {
	systemID         byte
	version          gomavlib.Version
	commandTimeout   time.Duration
	commandRetries   int
	heartbeatTimeout time.Duration
	logger           *zap.SugaredLogger
}

type Option func(*options)

// WithSystemID sets the MAVLink system id this ground station sends with.
func WithSystemID(id byte) Option {
	return func(o *options) { o.systemID = id }
}

// WithMavlinkV1 sends MAVLink v1 frames, for autopilots that don't speak v2.
func WithMavlinkV1() Option {
	return func(o *options) { o.version = gomavlib.V1 }
}

// WithCommandTimeout sets how long each command attempt waits for its COMMAND_ACK.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(o *options) { o.commandTimeout = timeout }
}

// WithCommandRetries sets how many times a command is sent before giving up.
func WithCommandRetries(retries int) Option {
	return func(o *options) { o.commandRetries = retries }
}

// WithHeartbeatTimeout sets how long without a heartbeat before the autopilot counts as disconnected.
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(o *options) { o.heartbeatTimeout = timeout }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = logger }
}

func defaultOptions() options {
	return options{
		systemID:         defaultSystemID,
		version:          gomavlib.V2,
		commandTimeout:   defaultCommandTimeout,
		commandRetries:   defaultCommandRetries,
		heartbeatTimeout: defaultHeartbeatTimeout,
		logger:           zap.NewNop().Sugar(),
	}
}

// Drone is a MAVLink autopilot seen through a gomavlib node.
type Drone struct {
	writer messageWriter
	opts   options
	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	close  func()

	cmdMu sync.Mutex // one command exchange at a time

	mu            sync.RWMutex
	targetSystem  uint8
	connected     bool
	lastHeartbeat time.Time
	uid           uint64
	landedState   common.MAV_LANDED_STATE
	gpsFix        bool

	connFeed     *feed[ConnectionState]
	versionFeed  *feed[Version]
	batteryFeed  *feed[Battery]
	inAirFeed    *feed[InAirInfo]
	homeFeed     *feed[Home]
	positionFeed *feed[Position]
	attitudeFeed *feed[Attitude]
	ackFeed      *feed[*common.MessageCommandAck]
	textFeed     *feed[string]
}

// Dial opens a MAVLink node on the given connection URL (see ParseEndpoint)
// and starts tracking the autopilot behind it.
func Dial(address string, opts ...Option) (*Drone, error) {
	endpoint, err := ParseEndpoint(address)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  o.version,
		OutSystemID: o.systemID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening mavlink node on %s", address)
	}

	o.logger.Infof("Listening for autopilot on %s", address)

	return NewDrone(node, context.Background(), opts...), nil
}

// NewDrone wraps an existing node. Closing the drone closes the node.
func NewDrone(node *gomavlib.Node, ctx context.Context, opts ...Option) *Drone {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := newDrone(ctx, node, node.Events(), o)
	d.close = node.Close

	return d
}

func newDrone(ctx context.Context, w messageWriter, events <-chan gomavlib.Event, o options) *Drone {
	if o.heartbeatTimeout <= 0 {
		o.heartbeatTimeout = defaultHeartbeatTimeout
	}
	if o.commandTimeout <= 0 {
		o.commandTimeout = defaultCommandTimeout
	}
	if o.commandRetries < 1 {
		o.commandRetries = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	d := &Drone{
		writer:       w,
		opts:         o,
		log:          o.logger,
		ctx:          ctx,
		cancel:       cancel,
		connFeed:     newFeed[ConnectionState](true),
		versionFeed:  newFeed[Version](true),
		batteryFeed:  newFeed[Battery](true),
		inAirFeed:    newFeed[InAirInfo](true),
		homeFeed:     newFeed[Home](true),
		positionFeed: newFeed[Position](true),
		attitudeFeed: newFeed[Attitude](true),
		ackFeed:      newFeed[*common.MessageCommandAck](false),
		textFeed:     newFeed[string](false),
	}
	d.connFeed.publish(ConnectionState{})

	go d.monitorEventLog(ctx, events)
	go d.watchHeartbeat(ctx)

	return d
}

// Close stops the event loop and closes the underlying node.
func (d *Drone) Close() {
	d.cancel()
	if d.close != nil {
		d.close()
	}
}

func (d *Drone) ConnectionState(ctx context.Context) <-chan ConnectionState {
	return d.connFeed.subscribe(ctx)
}

func (d *Drone) Battery(ctx context.Context) <-chan Battery {
	return d.batteryFeed.subscribe(ctx)
}

func (d *Drone) InAir(ctx context.Context) <-chan InAirInfo {
	return d.inAirFeed.subscribe(ctx)
}

func (d *Drone) Home(ctx context.Context) <-chan Home {
	return d.homeFeed.subscribe(ctx)
}

func (d *Drone) Position(ctx context.Context) <-chan Position {
	return d.positionFeed.subscribe(ctx)
}

func (d *Drone) Attitude(ctx context.Context) <-chan Attitude {
	return d.attitudeFeed.subscribe(ctx)
}

// Version returns the autopilot version, requesting AUTOPILOT_VERSION if it
// hasn't been received yet. A version that arrives while the request is
// still queued behind other commands is returned straight away.
func (d *Drone) Version(ctx context.Context) (Version, error) {
	if v, ok := d.versionFeed.latest(); ok {
		return v, nil
	}
	if !d.isConnected() {
		return Version{}, derrors.ErrNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	versions := d.versionFeed.subscribe(ctx)

	requested := make(chan error, 1)
	go func() {
		requested <- d.requestMessage(ctx, &common.MessageAutopilotVersion{})
	}()

	for {
		select {
		case v, ok := <-versions:
			if !ok {
				return Version{}, ctx.Err()
			}
			return v, nil
		case err := <-requested:
			if err != nil {
				return Version{}, errors.Wrap(err, "requesting autopilot version")
			}
			requested = nil
		case <-ctx.Done():
			return Version{}, ctx.Err()
		}
	}
}

func (d *Drone) Arm(ctx context.Context) error {
	return d.armDisarm(ctx, true)
}

func (d *Drone) Disarm(ctx context.Context) error {
	return d.armDisarm(ctx, false)
}

func (d *Drone) armDisarm(ctx context.Context, arm bool) error {
	system, component := d.target()
	msg := &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
	}
	if arm {
		msg.Param1 = 1 // 1 to arm, 0 to disarm
	}

	return d.sendCommand(ctx, msg)
}

// Takeoff climbs to the autopilot's configured takeoff altitude.
func (d *Drone) Takeoff(ctx context.Context) error {
	system, component := d.target()
	nan := float32(math.NaN())

	return d.sendCommand(ctx, &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_NAV_TAKEOFF,
		Param1:          -1,
		Param4:          nan,
		Param5:          nan,
		Param6:          nan,
		Param7:          nan,
	})
}

func (d *Drone) Land(ctx context.Context) error {
	system, component := d.target()
	nan := float32(math.NaN())

	return d.sendCommand(ctx, &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_NAV_LAND,
		Param2:          float32(common.PRECISION_LAND_MODE_DISABLED),
		Param4:          nan,
		Param5:          nan,
		Param6:          nan,
		Param7:          nan,
	})
}

// GoTo repositions to a global position. altitude is metres AMSL, yaw in degrees.
func (d *Drone) GoTo(ctx context.Context, latitude, longitude, altitude, yaw float64) error {
	system, component := d.target()

	return d.sendCommand(ctx, &common.MessageCommandInt{
		TargetSystem:    system,
		TargetComponent: component,
		Frame:           common.MAV_FRAME_GLOBAL,
		Command:         common.MAV_CMD_DO_REPOSITION,
		Param1:          -1, // default ground speed
		Param2:          1,  // MAV_DO_REPOSITION_FLAGS_CHANGE_MODE
		Param4:          float32(units.DegreesToRadians(yaw)),
		X:               units.ToE7(latitude),
		Y:               units.ToE7(longitude),
		Z:               float32(altitude),
	})
}

func (d *Drone) SetFlightMode(ctx context.Context, mode FlightMode) error {
	main, sub, ok := mode.custom()
	if !ok {
		return errors.Wrapf(derrors.ErrUnknownFlightMode, "mode %d", mode)
	}

	system, component := d.target()
	msg := &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_DO_SET_MODE,
		Param1:          float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		Param2:          float32(main),
		Param3:          float32(sub),
	}

	return errors.Wrapf(d.sendCommand(ctx, msg), "setting flight mode %s", mode)
}

func (d *Drone) requestMessage(ctx context.Context, m message.Message) error {
	system, component := d.target()
	return d.sendCommand(ctx, &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_REQUEST_MESSAGE,
		Param1:          float32(m.GetID()),
	})
}

func (d *Drone) target() (system, component uint8) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.targetSystem == 0 {
		return 1, autopilotComponent
	}
	return d.targetSystem, autopilotComponent
}

func (d *Drone) isConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// sendCommand writes a command and waits for the matching COMMAND_ACK,
// resending on timeout or a temporary rejection.
func (d *Drone) sendCommand(ctx context.Context, cmd message.Message) error {
	var command common.MAV_CMD
	switch msg := cmd.(type) {
	case *common.MessageCommandLong:
		command = msg.Command
	case *common.MessageCommandInt:
		command = msg.Command
	default:
		d.log.Debugf("Got non command message %T, not waiting for ack", cmd)
		return d.writer.WriteMessageAll(cmd)
	}

	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	// the caller may have given up while queued
	if err := ctx.Err(); err != nil {
		return err
	}

	ackCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	acks := d.ackFeed.subscribe(ackCtx)

	for i := 0; i < d.opts.commandRetries; i++ {
		if long, ok := cmd.(*common.MessageCommandLong); ok {
			long.Confirmation = uint8(i)
		}

		if err := d.writer.WriteMessageAll(cmd); err != nil {
			return errors.Wrapf(err, "writing %s", command.String())
		}
		d.log.Infof("Command %s sent, attempt %d", command.String(), i+1)

		err := d.checkAck(ctx, acks, command)
		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, derrors.ErrCommandTimeout), stderrors.Is(err, errTemporarilyRejected):
			continue
		default:
			return err
		}
	}

	return errors.Wrapf(derrors.ErrCommandTimeout, "%s after %d attempts", command.String(), d.opts.commandRetries)
}

func (d *Drone) checkAck(ctx context.Context, acks <-chan *common.MessageCommandAck, cmd common.MAV_CMD) error {
	exceeded := time.NewTimer(d.opts.commandTimeout)
	defer exceeded.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack, ok := <-acks:
			if !ok {
				return ctx.Err()
			}
			if ack.Command != cmd {
				continue
			}

			switch ack.Result {
			case common.MAV_RESULT_ACCEPTED:
				return nil
			case common.MAV_RESULT_IN_PROGRESS:
				if !exceeded.Stop() {
					<-exceeded.C
				}
				exceeded.Reset(d.opts.commandTimeout)
			case common.MAV_RESULT_TEMPORARILY_REJECTED:
				d.log.Warnf("Command %s temporarily rejected", cmd.String())
				return errTemporarilyRejected
			default:
				return errors.Wrapf(derrors.ErrCommandRejected, "%s: %s", cmd.String(), ack.Result.String())
			}
		case <-exceeded.C:
			d.log.Warnf("Exceeded timer waiting for ack ACCEPT %s", cmd.String())
			return derrors.ErrCommandTimeout
		}
	}
}

func (d *Drone) handleFrame(evt *gomavlib.EventFrame) {
	sysID := evt.Frame.GetSystemID()

	if hb, ok := evt.Frame.GetMessage().(*common.MessageHeartbeat); ok {
		d.handleHeartbeat(sysID, hb)
		return
	}

	d.mu.RLock()
	target := d.targetSystem
	d.mu.RUnlock()
	if target == 0 || sysID != target {
		return
	}

	switch msg := evt.Frame.GetMessage().(type) {
	case *common.MessageCommandAck:
		d.ackFeed.publish(msg)
	case *common.MessageStatustext:
		d.log.Infof("Autopilot: %s", msg.Text)
		d.textFeed.publish(msg.Text)
	case *common.MessageAutopilotVersion:
		d.mu.Lock()
		d.uid = msg.Uid
		d.mu.Unlock()
		d.versionFeed.publish(Version{
			Firmware: decodeSwVersion(msg.FlightSwVersion),
			OS:       decodeSwVersion(msg.OsSwVersion),
			UID:      msg.Uid,
		})
		d.publishConnection()
	case *common.MessageSysStatus:
		if msg.BatteryRemaining >= 0 {
			d.batteryFeed.publish(Battery{
				Percentage: float32(msg.BatteryRemaining),
				Voltage:    millivolts(msg.VoltageBattery),
			})
		}
	case *common.MessageBatteryStatus:
		if msg.BatteryRemaining >= 0 {
			d.batteryFeed.publish(Battery{
				Percentage: float32(msg.BatteryRemaining),
				Voltage:    millivolts(msg.Voltages[0]),
			})
		}
	case *common.MessageExtendedSysState:
		d.mu.Lock()
		d.landedState = msg.LandedState
		d.mu.Unlock()
		d.publishInAir()
	case *common.MessageGpsRawInt:
		d.mu.Lock()
		d.gpsFix = msg.FixType >= common.GPS_FIX_TYPE_3D_FIX
		d.mu.Unlock()
		d.publishInAir()
	case *common.MessageHomePosition:
		d.homeFeed.publish(Home{
			Latitude:         units.FromE7(msg.Latitude),
			Longitude:        units.FromE7(msg.Longitude),
			AbsoluteAltitude: units.Millimetres(msg.Altitude),
		})
	case *common.MessageGlobalPositionInt:
		d.positionFeed.publish(Position{
			Latitude:         units.FromE7(msg.Lat),
			Longitude:        units.FromE7(msg.Lon),
			AbsoluteAltitude: units.Millimetres(msg.Alt),
			RelativeAltitude: units.Millimetres(msg.RelativeAlt),
		})
	case *common.MessageAttitude:
		d.attitudeFeed.publish(Attitude{
			Roll:  units.RadiansToDegrees(float64(msg.Roll)),
			Pitch: units.RadiansToDegrees(float64(msg.Pitch)),
			Yaw:   units.RadiansToDegrees(float64(msg.Yaw)),
		})
	case *common.MessageAttitudeQuaternion:
		roll, pitch, yaw := utils.QuaternionToEulerDegrees([4]float32{msg.Q1, msg.Q2, msg.Q3, msg.Q4})
		d.attitudeFeed.publish(Attitude{Roll: roll, Pitch: pitch, Yaw: yaw})
	default:
		break
	}
}

func (d *Drone) handleHeartbeat(sysID uint8, hb *common.MessageHeartbeat) {
	// other ground stations share the link
	if hb.Type == common.MAV_TYPE_GCS || hb.Autopilot == common.MAV_AUTOPILOT_INVALID {
		return
	}

	d.mu.Lock()
	if d.targetSystem != 0 && d.targetSystem != sysID {
		d.mu.Unlock()
		return
	}
	d.targetSystem = sysID
	d.lastHeartbeat = time.Now()
	first := !d.connected
	d.connected = true
	d.mu.Unlock()

	if first {
		d.log.Infof("Autopilot discovered, system %d", sysID)
		d.publishConnection()
		go d.requestInitialMessages()
	}
}

func (d *Drone) requestInitialMessages() {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.commandTimeout*time.Duration(d.opts.commandRetries))
	defer cancel()

	for _, m := range []message.Message{&common.MessageAutopilotVersion{}, &common.MessageHomePosition{}} {
		if err := d.requestMessage(ctx, m); err != nil {
			d.log.Warnf("Requesting message %d: %v", m.GetID(), err)
		}
	}
}

func (d *Drone) publishConnection() {
	d.mu.RLock()
	state := ConnectionState{Connected: d.connected, SystemID: d.targetSystem, UUID: d.uid}
	d.mu.RUnlock()

	if state.Connected && state.UUID == 0 {
		state.UUID = uint64(state.SystemID)
	}
	d.connFeed.publish(state)
}

func (d *Drone) publishInAir() {
	d.mu.RLock()
	info := InAirInfo{HasGPSFix: d.gpsFix}
	switch d.landedState {
	case common.MAV_LANDED_STATE_IN_AIR, common.MAV_LANDED_STATE_TAKEOFF, common.MAV_LANDED_STATE_LANDING:
		info.InAir = true
	}
	d.mu.RUnlock()

	d.inAirFeed.publish(info)
}

func (d *Drone) watchHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatCheckInterval(d.opts.heartbeatTimeout))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			lost := d.connected && time.Since(d.lastHeartbeat) > d.opts.heartbeatTimeout
			if lost {
				d.connected = false
			}
			d.mu.Unlock()

			if lost {
				d.log.Warnf("Autopilot heartbeat lost")
				d.publishConnection()
			}
		}
	}
}

// heartbeatCheckInterval checks three times per timeout, never faster than
// minHeartbeatCheck.
func heartbeatCheckInterval(timeout time.Duration) time.Duration {
	return max(timeout/3, minHeartbeatCheck)
}

func (d *Drone) monitorEventLog(ctx context.Context, events <-chan gomavlib.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-events:
			if !ok {
				return
			}
			switch evt := ch.(type) {
			case *gomavlib.EventFrame:
				d.handleFrame(evt)
			case *gomavlib.EventChannelOpen:
				d.log.Debugf("Channel open: %v", evt.Channel)
			case *gomavlib.EventChannelClose:
				d.log.Debugf("Channel closed: %v", evt.Channel)
			case *gomavlib.EventParseError:
				d.log.Debugf("Parse error: %v", evt.Error)
			default:
				continue
			}
		}
	}
}

func millivolts(mv uint16) float32 {
	if mv == math.MaxUint16 {
		return 0
	}
	return float32(mv) / 1000
}
