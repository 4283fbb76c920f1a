package errors

import "errors"

var ErrUnimplemented = errors.New("ErrUnimplemented: method isn't implemented")
var ErrUnsupportedMessage = errors.New("ErrUnsupportedMessage: message isn't supported")

var ErrNotConnected = errors.New("ErrNotConnected: no autopilot heartbeat received")
var ErrInvalidEndpoint = errors.New("ErrInvalidEndpoint: connection address isn't supported")
var ErrUnknownFlightMode = errors.New("ErrUnknownFlightMode: flight mode isn't known")

var ErrCommandTimeout = errors.New("ErrCommandTimeout: no acknowledgement from autopilot")
var ErrCommandRejected = errors.New("ErrCommandRejected: autopilot rejected command")
var ErrCalibrationFailed = errors.New("ErrCalibrationFailed: autopilot reported calibration failure")

// ErrConditionTimeout is returned when a telemetry wait gives up before its condition held.
var ErrConditionTimeout = errors.New("ErrConditionTimeout: condition never met")
var ErrStreamClosed = errors.New("ErrStreamClosed: telemetry stream ended")

// ErrLowBattery aborts a mission from the battery check.
var ErrLowBattery = errors.New("ErrLowBattery: battery below safe threshold")
