package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediactl/pkg/base"
)

// TransportProtocol is the lower transport protocol of a stream.
type TransportProtocol int

const (
	// TransportProtocolUDP is RTP over UDP ("RTP/AVP").
	TransportProtocolUDP TransportProtocol = iota

	// TransportProtocolTCP is RTP interleaved in the RTSP connection ("RTP/AVP/TCP").
	TransportProtocolTCP

	// TransportProtocolRawUDP is a raw UDP stream ("RAW/RAW/UDP").
	TransportProtocolRawUDP
)

// String implements fmt.Stringer.
func (p TransportProtocol) String() string {
	switch p {
	case TransportProtocolUDP:
		return "RTP/AVP"

	case TransportProtocolTCP:
		return "RTP/AVP/TCP"

	case TransportProtocolRawUDP:
		return "RAW/RAW/UDP"
	}
	return "unknown"
}

// TransportDelivery is a delivery method.
type TransportDelivery int

const (
	// TransportDeliveryUnicast is the unicast delivery method.
	TransportDeliveryUnicast TransportDelivery = iota

	// TransportDeliveryMulticast is the multicast delivery method.
	TransportDeliveryMulticast
)

// TransportMode is a transport mode.
type TransportMode int

const (
	// TransportModePlay is the "play" transport mode
	TransportModePlay TransportMode = iota

	// TransportModeRecord is the "record" transport mode
	TransportModeRecord
)

// String implements fmt.Stringer.
func (tm TransportMode) String() string {
	switch tm {
	case TransportModePlay:
		return "play"

	case TransportModeRecord:
		return "record"
	}
	return "unknown"
}

// Transport is a Transport header.
type Transport struct {
	// protocol of the stream
	Protocol TransportProtocol

	// (optional) delivery method of the stream
	Delivery *TransportDelivery

	// (optional) source
	Source *string

	// (optional) destination
	Destination *string

	// (optional) TTL
	TTL *uint

	// (optional) multicast ports
	Ports *[2]int

	// (optional) client ports
	ClientPorts *[2]int

	// (optional) server ports
	ServerPorts *[2]int

	// (optional) interleaved frame IDs
	InterleavedIDs *[2]int

	// (optional) mode
	Mode *TransportMode
}

func parsePorts(val string) (*[2]int, error) {
	ports := strings.Split(val, "-")
	if len(ports) == 2 {
		port1, err := strconv.ParseUint(ports[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		port2, err := strconv.ParseUint(ports[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port2)}, nil
	}

	if len(ports) == 1 {
		port1, err := strconv.ParseUint(ports[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port1 + 1)}, nil
	}

	return nil, fmt.Errorf("invalid ports (%v)", val)
}

func formatPorts(ports [2]int) string {
	return strconv.FormatInt(int64(ports[0]), 10) + "-" + strconv.FormatInt(int64(ports[1]), 10)
}

// Unmarshal decodes a Transport header.
// When the header contains multiple comma-separated transports, the first
// one is decoded.
func (h *Transport) Unmarshal(v base.HeaderValue) error {
	v0, err := singleValue(v)
	if err != nil {
		return err
	}

	v0, _, _ = strings.Cut(v0, ",")

	parts := strings.Split(v0, ";")

	switch strings.ToUpper(strings.TrimSpace(parts[0])) {
	case "RTP/AVP", "RTP/AVP/UDP":
		h.Protocol = TransportProtocolUDP

	case "RTP/AVP/TCP":
		h.Protocol = TransportProtocolTCP

	case "RAW/RAW/UDP", "MP2T/H2221/UDP":
		h.Protocol = TransportProtocolRawUDP

	default:
		return fmt.Errorf("invalid protocol (%v)", v)
	}
	parts = parts[1:]

	for _, t := range parts {
		key, val, _ := strings.Cut(strings.TrimSpace(t), "=")

		switch strings.ToLower(key) {
		case "unicast":
			v := TransportDeliveryUnicast
			h.Delivery = &v

		case "multicast":
			v := TransportDeliveryMulticast
			h.Delivery = &v

		case "source":
			h.Source = &val

		case "destination":
			h.Destination = &val

		case "ttl":
			v, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return err
			}
			vu := uint(v)
			h.TTL = &vu

		case "port":
			ports, err := parsePorts(val)
			if err != nil {
				return err
			}
			h.Ports = ports

		case "client_port":
			ports, err := parsePorts(val)
			if err != nil {
				return err
			}
			h.ClientPorts = ports

		case "server_port":
			ports, err := parsePorts(val)
			if err != nil {
				return err
			}
			h.ServerPorts = ports

		case "interleaved":
			ports, err := parsePorts(val)
			if err != nil {
				return err
			}
			h.InterleavedIDs = ports

		case "mode":
			str := strings.ToLower(strings.Trim(val, "\""))

			switch str {
			case "play":
				v := TransportModePlay
				h.Mode = &v

				// receive is an old alias for record, used by ffmpeg with the
				// -listen flag, and by Darwin Streaming Server
			case "record", "receive":
				v := TransportModeRecord
				h.Mode = &v

			default:
				return fmt.Errorf("invalid transport mode: '%s'", str)
			}
		}

		// ignore non-standard keys
	}

	return nil
}

// Marshal encodes a Transport header.
func (h Transport) Marshal() base.HeaderValue {
	rets := []string{h.Protocol.String()}

	if h.Delivery != nil {
		if *h.Delivery == TransportDeliveryUnicast {
			rets = append(rets, "unicast")
		} else {
			rets = append(rets, "multicast")
		}
	}

	if h.Source != nil {
		rets = append(rets, "source="+*h.Source)
	}

	if h.Destination != nil {
		rets = append(rets, "destination="+*h.Destination)
	}

	if h.TTL != nil {
		rets = append(rets, "ttl="+strconv.FormatUint(uint64(*h.TTL), 10))
	}

	if h.Ports != nil {
		rets = append(rets, "port="+formatPorts(*h.Ports))
	}

	if h.ClientPorts != nil {
		rets = append(rets, "client_port="+formatPorts(*h.ClientPorts))
	}

	if h.ServerPorts != nil {
		rets = append(rets, "server_port="+formatPorts(*h.ServerPorts))
	}

	if h.InterleavedIDs != nil {
		rets = append(rets, "interleaved="+formatPorts(*h.InterleavedIDs))
	}

	if h.Mode != nil {
		rets = append(rets, "mode="+h.Mode.String())
	}

	return base.HeaderValue{strings.Join(rets, ";")}
}
