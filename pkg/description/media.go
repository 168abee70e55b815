// Package description contains objects to describe streams.
package description

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pion/rtp"
	psdp "github.com/pion/sdp/v3"
)

type staticPayloadType struct {
	codecName string
	clockRate int
	channels  int
}

// RFC 3551, table 4 and 5.
var staticPayloadTypes = map[uint8]staticPayloadType{
	0:  {"PCMU", 8000, 1},
	3:  {"GSM", 8000, 1},
	4:  {"G723", 8000, 1},
	5:  {"DVI4", 8000, 1},
	6:  {"DVI4", 16000, 1},
	7:  {"LPC", 8000, 1},
	8:  {"PCMA", 8000, 1},
	9:  {"G722", 8000, 1},
	10: {"L16", 44100, 2},
	11: {"L16", 44100, 1},
	12: {"QCELP", 8000, 1},
	13: {"CN", 8000, 1},
	14: {"MPA", 90000, 1},
	15: {"G728", 8000, 1},
	16: {"DVI4", 11025, 1},
	17: {"DVI4", 22050, 1},
	18: {"G729", 8000, 1},
	25: {"CELB", 90000, 0},
	26: {"JPEG", 90000, 0},
	28: {"NV", 90000, 0},
	31: {"H261", 90000, 0},
	32: {"MPV", 90000, 0},
	33: {"MP2T", 90000, 0},
	34: {"H263", 90000, 0},
}

func getAttribute(attributes []psdp.Attribute, key string) string {
	for _, attr := range attributes {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}

func hasAttribute(attributes []psdp.Attribute, key string) bool {
	for _, attr := range attributes {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func getFormatAttribute(attributes []psdp.Attribute, payloadType uint8, key string) string {
	for _, attr := range attributes {
		if attr.Key == key {
			v := strings.TrimSpace(attr.Value)
			if parts := strings.SplitN(v, " ", 2); len(parts) == 2 {
				if tmp, err := strconv.ParseUint(parts[0], 10, 8); err == nil && uint8(tmp) == payloadType {
					return parts[1]
				}
			}
		}
	}
	return ""
}

func decodeFMTP(enc string) map[string]string {
	if enc == "" {
		return nil
	}

	ret := make(map[string]string)

	for _, kv := range strings.Split(enc, ";") {
		kv = strings.Trim(kv, " ")

		if len(kv) == 0 {
			continue
		}

		tmp := strings.SplitN(kv, "=", 2)
		if len(tmp) != 2 {
			continue
		}

		ret[strings.ToLower(tmp[0])] = tmp[1]
	}

	return ret
}

func decodeRTPMap(rtpMap string) (string, int, int, error) {
	parts := strings.Split(rtpMap, "/")
	if len(parts) < 2 {
		return "", 0, 0, fmt.Errorf("invalid rtpmap (%v)", rtpMap)
	}

	clockRate, err := strconv.ParseUint(parts[1], 10, 31)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid clock rate (%v)", parts[1])
	}

	channels := 1
	if len(parts) >= 3 {
		tmp, err := strconv.ParseUint(parts[2], 10, 31)
		if err != nil {
			return "", 0, 0, fmt.Errorf("invalid channel count (%v)", parts[2])
		}
		channels = int(tmp)
	}

	return strings.ToUpper(parts[0]), int(clockRate), channels, nil
}

// MediaType is the type of a media stream.
type MediaType string

// media types.
const (
	MediaTypeVideo       MediaType = "video"
	MediaTypeAudio       MediaType = "audio"
	MediaTypeApplication MediaType = "application"
)

// PlayState is the playback baseline reported by the server
// in the response to PLAY.
type PlayState struct {
	// NPT of the first packet.
	Start time.Duration

	// playback speed.
	Scale float64

	// RTP-Info sequence number and timestamp (optional).
	SequenceNumber *uint16
	Timestamp      *uint32
}

// Media is a media stream of a session, also called subsession.
type Media struct {
	// Media type.
	Type MediaType

	// Transport protocol, e.g. RTP/AVP.
	Protocol string

	// Port advertised in the description. It is not zero for multicast sessions.
	Port int

	// Control attribute.
	Control string

	// Whether this media is a back channel.
	IsBackChannel bool

	// payload type of the first format.
	PayloadType uint8

	// codec name, upper case, e.g. H264.
	CodecName string

	// RTP timestamp frequency.
	ClockRate int

	// channel count, zero for video.
	Channels int

	// format-specific parameters.
	FMTP map[string]string

	// connection address (c=), inherited from the session when missing.
	ConnectionAddress string

	// filled after a successful PLAY.
	Play *PlayState
}

// Unmarshal decodes the media from the SDP format.
func (m *Media) Unmarshal(md *psdp.MediaDescription) error {
	m.Type = MediaType(md.MediaName.Media)
	m.Protocol = strings.Join(md.MediaName.Protos, "/")
	m.Port = md.MediaName.Port.Value
	m.Control = getAttribute(md.Attributes, "control")
	m.IsBackChannel = hasAttribute(md.Attributes, "sendonly")

	if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
		m.ConnectionAddress = md.ConnectionInformation.Address.Address
	}

	if len(md.MediaName.Formats) == 0 {
		return fmt.Errorf("no formats found")
	}

	tmp, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 7)
	if err != nil {
		return fmt.Errorf("invalid payload type (%v)", md.MediaName.Formats[0])
	}
	m.PayloadType = uint8(tmp)

	rtpMap := getFormatAttribute(md.Attributes, m.PayloadType, "rtpmap")
	if rtpMap != "" {
		m.CodecName, m.ClockRate, m.Channels, err = decodeRTPMap(rtpMap)
		if err != nil {
			return err
		}
		if m.Type == MediaTypeVideo {
			m.Channels = 0
		}
	} else {
		st, ok := staticPayloadTypes[m.PayloadType]
		if !ok {
			return fmt.Errorf("payload type %d has no rtpmap", m.PayloadType)
		}
		m.CodecName = st.codecName
		m.ClockRate = st.clockRate
		m.Channels = st.channels
	}

	m.FMTP = decodeFMTP(getFormatAttribute(md.Attributes, m.PayloadType, "fmtp"))

	return nil
}

// Marshal encodes the media in SDP format.
func (m Media) Marshal() *psdp.MediaDescription {
	protos := []string{"RTP", "AVP"}
	if m.Protocol != "" {
		protos = strings.Split(m.Protocol, "/")
	}

	md := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   string(m.Type),
			Port:    psdp.RangedPort{Value: m.Port},
			Protos:  protos,
			Formats: []string{strconv.FormatUint(uint64(m.PayloadType), 10)},
		},
	}

	if m.CodecName != "" {
		rtpMap := m.CodecName + "/" + strconv.FormatInt(int64(m.ClockRate), 10)
		if m.Channels > 1 {
			rtpMap += "/" + strconv.FormatInt(int64(m.Channels), 10)
		}
		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key:   "rtpmap",
			Value: strconv.FormatUint(uint64(m.PayloadType), 10) + " " + rtpMap,
		})
	}

	if len(m.FMTP) != 0 {
		keys := make([]string, 0, len(m.FMTP))
		for key := range m.FMTP {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		tmp := make([]string, len(keys))
		for i, key := range keys {
			tmp[i] = key + "=" + m.FMTP[key]
		}

		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key:   "fmtp",
			Value: strconv.FormatUint(uint64(m.PayloadType), 10) + " " + strings.Join(tmp, ";"),
		})
	}

	if m.IsBackChannel {
		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key: "sendonly",
		})
	}

	md.Attributes = append(md.Attributes, psdp.Attribute{
		Key:   "control",
		Value: m.Control,
	})

	return md
}

// NPT returns the normal play time of a RTP packet, computed from
// the RTP-Info baseline received in the response to PLAY.
func (m *Media) NPT(pkt *rtp.Packet) (time.Duration, bool) {
	if m.Play == nil || m.Play.Timestamp == nil || m.ClockRate == 0 {
		return 0, false
	}

	delta := float64(int32(pkt.Timestamp-*m.Play.Timestamp)) / float64(m.ClockRate)

	scale := m.Play.Scale
	if scale == 0 {
		scale = 1
	}

	return m.Play.Start + time.Duration(delta*scale*float64(time.Second)), true
}
