package drone

import (
	"context"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	derrors "FlightCheck/internal/errors"
)

type CalibrationKind uint8

const (
	CalibrationGyro CalibrationKind = iota + 1
	CalibrationAccelerometer
	CalibrationMagnetometer
	CalibrationLevelHorizon
	CalibrationHomePoint
)

func (k CalibrationKind) String() string {
	switch k {
	case CalibrationGyro:
		return "gyroscope"
	case CalibrationAccelerometer:
		return "accelerometer"
	case CalibrationMagnetometer:
		return "magnetometer"
	case CalibrationLevelHorizon:
		return "board level horizon"
	case CalibrationHomePoint:
		return "home point"
	}
	return "unknown"
}

func (k CalibrationKind) command(system, component uint8) (message.Message, error) {
	cmd := &common.MessageCommandLong{
		TargetSystem:    system,
		TargetComponent: component,
		Command:         common.MAV_CMD_PREFLIGHT_CALIBRATION,
	}

	switch k {
	case CalibrationGyro:
		cmd.Param1 = 1
	case CalibrationMagnetometer:
		cmd.Param2 = 1
	case CalibrationAccelerometer:
		cmd.Param5 = 1
	case CalibrationLevelHorizon:
		cmd.Param5 = 2
	case CalibrationHomePoint:
		cmd.Command = common.MAV_CMD_DO_SET_HOME
		cmd.Param1 = 1 // use current location
	default:
		return nil, errors.Wrapf(derrors.ErrUnimplemented, "calibration %d", k)
	}

	return cmd, nil
}

type calEventKind int

const (
	calStatus calEventKind = iota
	calProgress
	calStarted
	calDone
	calFailed
	calCancelled
)

type calEvent struct {
	kind     calEventKind
	progress float32
	text     string
}

const calPrefix = "[cal] "

// parseCalibrationText decodes a PX4 "[cal]" STATUSTEXT line. Lines without
// the prefix are not calibration messages.
func parseCalibrationText(text string) (calEvent, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, calPrefix) {
		return calEvent{}, false
	}
	body := strings.TrimSpace(strings.TrimPrefix(text, calPrefix))

	switch {
	case strings.HasPrefix(body, "progress "):
		raw := strings.Trim(strings.TrimPrefix(body, "progress "), "<> ")
		pct, err := strconv.Atoi(raw)
		if err != nil || pct < 0 || pct > 100 {
			return calEvent{kind: calStatus, text: body}, true
		}
		return calEvent{kind: calProgress, progress: float32(pct) / 100}, true

	case strings.HasPrefix(body, "calibration started"):
		return calEvent{kind: calStarted, text: body}, true

	case strings.HasPrefix(body, "calibration done"):
		return calEvent{kind: calDone, text: body}, true

	case strings.HasPrefix(body, "calibration failed"):
		reason := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(body, "calibration failed"), ":"))
		return calEvent{kind: calFailed, text: reason}, true

	case strings.HasPrefix(body, "calibration cancelled"):
		return calEvent{kind: calCancelled, text: body}, true
	}

	return calEvent{kind: calStatus, text: body}, true
}

// Calibrate starts a calibration and returns its progress updates. The
// channel is closed when the autopilot reports the calibration finished,
// failed or when ctx ends.
func (d *Drone) Calibrate(ctx context.Context, kind CalibrationKind) (<-chan CalibrationProgress, error) {
	system, component := d.target()
	cmd, err := kind.command(system, component)
	if err != nil {
		return nil, err
	}

	if kind == CalibrationHomePoint {
		if err := d.sendCommand(ctx, cmd); err != nil {
			return nil, errors.Wrap(err, "setting home point")
		}
		out := make(chan CalibrationProgress, 1)
		out <- CalibrationProgress{HasProgress: true, Progress: 1, HasStatusText: true, StatusText: "home point set"}
		close(out)
		return out, nil
	}

	calCtx, cancel := context.WithCancel(ctx)
	texts := d.textFeed.subscribe(calCtx)

	if err := d.sendCommand(calCtx, cmd); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "starting %s calibration", kind)
	}

	out := make(chan CalibrationProgress, 1)
	go func() {
		defer close(out)
		defer cancel()

		emit := func(p CalibrationProgress) bool {
			select {
			case out <- p:
				return true
			case <-calCtx.Done():
				return false
			}
		}

		for text := range texts {
			ev, ok := parseCalibrationText(text)
			if !ok {
				continue
			}

			switch ev.kind {
			case calProgress:
				if !emit(CalibrationProgress{HasProgress: true, Progress: ev.progress}) {
					return
				}
			case calStarted, calStatus:
				if !emit(CalibrationProgress{HasStatusText: true, StatusText: ev.text}) {
					return
				}
			case calDone:
				d.log.Infof("%s calibration done", kind)
				emit(CalibrationProgress{HasProgress: true, Progress: 1, HasStatusText: true, StatusText: ev.text})
				return
			case calFailed:
				emit(CalibrationProgress{Err: errors.Wrapf(derrors.ErrCalibrationFailed, "%s: %s", kind, ev.text)})
				return
			case calCancelled:
				emit(CalibrationProgress{Err: errors.Wrapf(derrors.ErrCalibrationFailed, "%s: cancelled", kind)})
				return
			}
		}

		// the subscription only ends with the context
		select {
		case out <- CalibrationProgress{Err: ctx.Err()}:
		default:
		}
	}()

	return out, nil
}
