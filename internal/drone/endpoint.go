package drone

import (
	"net"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/pkg/errors"

	derrors "FlightCheck/internal/errors"
)

const defaultSerialBaud = 57600

// ParseEndpoint turns a connection URL into a gomavlib endpoint.
//
//	udp://[host]:port     listen for UDP (PX4 SITL uses udp://:14540)
//	udpin://[host]:port   same as udp://
//	udpout://host:port    send UDP to a remote autopilot
//	tcp://host:port       connect over TCP
//	tcpin://[host]:port   accept a TCP connection
//	serial://device[:baud]
func ParseEndpoint(address string) (gomavlib.EndpointConf, error) {
	scheme, rest, ok := strings.Cut(address, "://")
	if !ok || rest == "" {
		return nil, errors.Wrapf(derrors.ErrInvalidEndpoint, "%q", address)
	}

	switch strings.ToLower(scheme) {
	case "udp", "udpin":
		if _, err := splitHostPort(rest, false); err != nil {
			return nil, errors.Wrapf(err, "%q", address)
		}
		return gomavlib.EndpointUDPServer{Address: rest}, nil

	case "udpout":
		if _, err := splitHostPort(rest, true); err != nil {
			return nil, errors.Wrapf(err, "%q", address)
		}
		return gomavlib.EndpointUDPClient{Address: rest}, nil

	case "tcp", "tcpout":
		if _, err := splitHostPort(rest, true); err != nil {
			return nil, errors.Wrapf(err, "%q", address)
		}
		return gomavlib.EndpointTCPClient{Address: rest}, nil

	case "tcpin":
		if _, err := splitHostPort(rest, false); err != nil {
			return nil, errors.Wrapf(err, "%q", address)
		}
		return gomavlib.EndpointTCPServer{Address: rest}, nil

	case "serial":
		device, baud := rest, defaultSerialBaud
		if i := strings.LastIndex(rest, ":"); i > 0 {
			b, err := strconv.Atoi(rest[i+1:])
			if err != nil || b <= 0 {
				return nil, errors.Wrapf(derrors.ErrInvalidEndpoint, "%q: bad baud rate", address)
			}
			device, baud = rest[:i], b
		}
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
	}

	return nil, errors.Wrapf(derrors.ErrInvalidEndpoint, "%q: unknown scheme %q", address, scheme)
}

func splitHostPort(hostPort string, needHost bool) (string, error) {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", errors.Wrap(derrors.ErrInvalidEndpoint, err.Error())
	}
	if needHost && host == "" {
		return "", errors.Wrap(derrors.ErrInvalidEndpoint, "missing host")
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return "", errors.Wrapf(derrors.ErrInvalidEndpoint, "bad port %q", port)
	}
	return host, nil
}
