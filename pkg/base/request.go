// Package base contains the primitives of the RTSP protocol.
package base

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	rtspProtocol10         = "RTSP/1.0"
	requestMaxMethodLength = 64
	requestMaxURLLength    = 2048
	requestMaxLineLength   = requestMaxMethodLength + requestMaxURLLength + 64
)

// Method is the method of a RTSP request.
type Method string

// methods.
const (
	Announce     Method = "ANNOUNCE"
	Describe     Method = "DESCRIBE"
	GetParameter Method = "GET_PARAMETER"
	Options      Method = "OPTIONS"
	Pause        Method = "PAUSE"
	Play         Method = "PLAY"
	Record       Method = "RECORD"
	Setup        Method = "SETUP"
	SetParameter Method = "SET_PARAMETER"
	Teardown     Method = "TEARDOWN"
)

// Request is a RTSP request.
type Request struct {
	// request method
	Method Method

	// request url. It is nil when the request targets "*".
	URL *URL

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Unmarshal reads a request.
func (req *Request) Unmarshal(br *bufio.Reader) error {
	line, err := readLine(br, requestMaxLineLength)
	if err != nil {
		return err
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return fmt.Errorf("invalid request line '%s'", line)
	}

	req.Method = Method(parts[0])
	if req.Method == "" {
		return fmt.Errorf("empty method")
	}

	if parts[1] != "*" {
		ur, err2 := ParseURL(parts[1])
		if err2 != nil {
			return fmt.Errorf("invalid URL (%v)", parts[1])
		}
		req.URL = ur
	} else {
		req.URL = nil
	}

	if parts[2] != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, parts[2])
	}

	err = req.Header.Unmarshal(br)
	if err != nil {
		return err
	}

	return (*body)(&req.Body).unmarshal(req.Header, br)
}

// Marshal encodes a Request.
// Credentials are never written into the request line.
func (req Request) Marshal() ([]byte, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("method is empty")
	}

	var sb strings.Builder

	urStr := "*"
	if req.URL != nil {
		urStr = req.URL.CloneWithoutCredentials().String()
	}
	sb.WriteString(string(req.Method) + " " + urStr + " " + rtspProtocol10 + "\r\n")

	if req.Header == nil {
		req.Header = make(Header)
	}

	if len(req.Body) != 0 {
		req.Header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(req.Body)), 10)}
	}

	req.Header.MarshalTo(&sb, "CSeq")
	sb.Write(req.Body)

	return []byte(sb.String()), nil
}

// String implements fmt.Stringer.
func (req Request) String() string {
	buf, _ := req.Marshal()
	return string(buf)
}
