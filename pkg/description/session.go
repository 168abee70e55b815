package description

import (
	"bytes"
	"fmt"

	psdp "github.com/pion/sdp/v3"

	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/headers"
)

// StripNUL removes NUL bytes from a session description.
// Some servers append or embed them. It returns the cleaned body and the
// number of removed bytes.
func StripNUL(body []byte) ([]byte, int) {
	n := bytes.Count(body, []byte{0})
	if n == 0 {
		return body, 0
	}

	ret := make([]byte, 0, len(body)-n)
	for _, b := range body {
		if b != 0 {
			ret = append(ret, b)
		}
	}
	return ret, n
}

// normalize line endings, drop empty lines and add the timing line,
// that some servers omit and the decoder requires.
func normalizeLines(body []byte) []byte {
	var lines [][]byte
	hasTiming := false

	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimRight(line, "\r \t")
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("t=")) {
			hasTiming = true
		}
		lines = append(lines, line)
	}

	var buf bytes.Buffer
	for _, line := range lines {
		if !hasTiming && len(line) >= 2 && line[1] == '=' && bytes.IndexByte([]byte("rzkam"), line[0]) >= 0 {
			buf.WriteString("t=0 0\r\n")
			hasTiming = true
		}
		buf.Write(line)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// Session is the description of a RTSP stream.
type Session struct {
	// base URL of the stream (read only).
	BaseURL *base.URL

	// title of the stream (optional).
	Title string

	// session-level control attribute (optional).
	Control string

	// session-level range attribute (optional).
	Range *headers.Range

	// session-level connection address (optional).
	ConnectionAddress string

	// available media streams.
	Medias []*Media
}

// Unmarshal decodes the description from SDP.
func (d *Session) Unmarshal(body []byte) error {
	body, _ = StripNUL(body)

	var sd psdp.SessionDescription
	err := sd.Unmarshal(normalizeLines(body))
	if err != nil {
		return err
	}

	d.Title = string(sd.SessionName)
	if d.Title == " " {
		d.Title = ""
	}

	d.Control, _ = sd.Attribute("control")

	d.Range = nil
	if v, ok := sd.Attribute("range"); ok {
		var r headers.Range
		if r.Unmarshal(base.HeaderValue{v}) == nil {
			d.Range = &r
		}
	}

	d.ConnectionAddress = ""
	if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		d.ConnectionAddress = sd.ConnectionInformation.Address.Address
	}

	d.Medias = make([]*Media, len(sd.MediaDescriptions))

	for i, md := range sd.MediaDescriptions {
		var m Media
		err = m.Unmarshal(md)
		if err != nil {
			return fmt.Errorf("media %d is invalid: %w", i+1, err)
		}

		if m.ConnectionAddress == "" {
			m.ConnectionAddress = d.ConnectionAddress
		}

		d.Medias[i] = &m
	}

	return nil
}

// Marshal encodes the description in SDP.
func (d Session) Marshal(multicast bool) ([]byte, error) {
	var sessionName psdp.SessionName
	if d.Title != "" {
		sessionName = psdp.SessionName(d.Title)
	} else {
		// RFC 4566: If a session has no meaningful name, the
		// value "s= " SHOULD be used (i.e., a single space as the session name).
		sessionName = psdp.SessionName(" ")
	}

	var address string
	if multicast {
		address = "224.1.0.0"
	} else {
		address = "0.0.0.0"
	}

	sout := &psdp.SessionDescription{
		SessionName: sessionName,
		Origin: psdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: address},
		},
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: make([]*psdp.MediaDescription, len(d.Medias)),
	}

	if d.Control != "" {
		sout.Attributes = append(sout.Attributes, psdp.Attribute{Key: "control", Value: d.Control})
	}

	if d.Range != nil {
		sout.Attributes = append(sout.Attributes, psdp.Attribute{Key: "range", Value: d.Range.Marshal()[0]})
	}

	for i, media := range d.Medias {
		sout.MediaDescriptions[i] = media.Marshal()
	}

	return sout.Marshal()
}

// URL returns the URL of the whole session, used by aggregate commands.
func (d *Session) URL() (*base.URL, error) {
	if d.BaseURL == nil {
		return nil, fmt.Errorf("base URL not set")
	}
	return d.BaseURL.ResolveControl(d.Control)
}

// MediaURL returns the URL of a media, used by SETUP and by per-media commands.
func (d *Session) MediaURL(m *Media) (*base.URL, error) {
	su, err := d.URL()
	if err != nil {
		return nil, err
	}
	return su.ResolveControl(m.Control)
}

// SubsessionDescriptor describes a media that has been set up. It is
// consumed by the media layer.
type SubsessionDescriptor struct {
	Medium         MediaType
	CodecName      string
	ClockRate      int
	SessionID      string
	ServerAddress  string
	Interleaved    bool
	Multicast      bool
	ClientPorts    *[2]int
	ServerPorts    *[2]int
	InterleavedIDs *[2]int
}
