package drone

import (
	stderrors "errors"
	"testing"

	"github.com/bluenviron/gomavlib/v3"

	derrors "FlightCheck/internal/errors"
)

func TestParseCalibrationText(t *testing.T) {
	cases := []struct {
		text     string
		ok       bool
		kind     calEventKind
		progress float32
		body     string
	}{
		{"[cal] progress <42>", true, calProgress, 0.42, ""},
		{"[cal] progress 100", true, calProgress, 1, ""},
		{"[cal] progress <abc>", true, calStatus, 0, "progress <abc>"},
		{"[cal] calibration started: 2 accel", true, calStarted, 0, "calibration started: 2 accel"},
		{"[cal] calibration done: mag", true, calDone, 0, "calibration done: mag"},
		{"[cal] calibration failed: no motion", true, calFailed, 0, "no motion"},
		{"[cal] calibration cancelled", true, calCancelled, 0, "calibration cancelled"},
		{"[cal] down orientation detected", true, calStatus, 0, "down orientation detected"},
		{"Preflight Fail: Compass Sensor 0 missing", false, 0, 0, ""},
	}

	for _, c := range cases {
		ev, ok := parseCalibrationText(c.text)
		if ok != c.ok {
			t.Errorf("%q: expected ok=%v, got %v", c.text, c.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if ev.kind != c.kind {
			t.Errorf("%q: expected kind %d, got %d", c.text, c.kind, ev.kind)
		}
		if ev.progress != c.progress {
			t.Errorf("%q: expected progress %v, got %v", c.text, c.progress, ev.progress)
		}
		if c.body != "" && ev.text != c.body {
			t.Errorf("%q: expected text %q, got %q", c.text, c.body, ev.text)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		address string
		want    gomavlib.EndpointConf
	}{
		{"udp://:14540", gomavlib.EndpointUDPServer{Address: ":14540"}},
		{"udpin://0.0.0.0:14550", gomavlib.EndpointUDPServer{Address: "0.0.0.0:14550"}},
		{"udpout://192.168.1.10:14555", gomavlib.EndpointUDPClient{Address: "192.168.1.10:14555"}},
		{"tcp://127.0.0.1:5760", gomavlib.EndpointTCPClient{Address: "127.0.0.1:5760"}},
		{"tcpin://:5760", gomavlib.EndpointTCPServer{Address: ":5760"}},
		{"serial:///dev/ttyUSB0", gomavlib.EndpointSerial{Device: "/dev/ttyUSB0", Baud: 57600}},
		{"serial:///dev/ttyACM0:921600", gomavlib.EndpointSerial{Device: "/dev/ttyACM0", Baud: 921600}},
	}

	for _, c := range cases {
		got, err := ParseEndpoint(c.address)
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.address, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: expected %#v, got %#v", c.address, c.want, got)
		}
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, address := range []string{
		"",
		":14540",
		"udp://",
		"udp://14540",
		"udpout://:14540",
		"tcp://:5760",
		"udp://:99999",
		"serial:///dev/ttyUSB0:fast",
		"http://localhost:80",
	} {
		if _, err := ParseEndpoint(address); !stderrors.Is(err, derrors.ErrInvalidEndpoint) {
			t.Errorf("%q: expected ErrInvalidEndpoint, got %v", address, err)
		}
	}
}

func TestParseFlightMode(t *testing.T) {
	mode, err := ParseFlightMode("Landing")
	if err != nil {
		t.Fatalf("ParseFlightMode failed: %v", err)
	}
	if mode != FLIGHT_MODE_LAND {
		t.Errorf("Expected FLIGHT_MODE_LAND, got %v", mode)
	}
	if mode.String() != "landing" {
		t.Errorf("Expected name landing, got %s", mode)
	}

	if _, err := ParseFlightMode("guided"); !stderrors.Is(err, derrors.ErrUnknownFlightMode) {
		t.Errorf("Expected ErrUnknownFlightMode, got %v", err)
	}
}

func TestCalibrationProgressString(t *testing.T) {
	cases := []struct {
		p    CalibrationProgress
		want string
	}{
		{CalibrationProgress{HasProgress: true, Progress: 0.25}, "progress 25%"},
		{CalibrationProgress{HasStatusText: true, StatusText: "rotate"}, "rotate"},
		{CalibrationProgress{HasProgress: true, Progress: 1, HasStatusText: true, StatusText: "done"}, "progress 100%: done"},
	}
	for _, c := range cases {
		if got := c.p.String(); got != c.want {
			t.Errorf("Expected %q, got %q", c.want, got)
		}
	}
}
