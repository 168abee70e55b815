package base

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	responseMaxLineLength = 512
)

// Response is a RTSP response.
type Response struct {
	// numeric status code
	StatusCode StatusCode

	// status message
	StatusMessage string

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Unmarshal reads a response.
// Line breaks that precede the status line are skipped.
func (res *Response) Unmarshal(br *bufio.Reader) error {
	err := SkipLineBreaks(br)
	if err != nil {
		return err
	}

	line, err := readLine(br, responseMaxLineLength)
	if err != nil {
		return err
	}

	proto, rest, _ := strings.Cut(line, " ")
	if proto != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, proto)
	}

	codeStr, msg, _ := strings.Cut(rest, " ")

	code, err := strconv.ParseInt(codeStr, 10, 32)
	if err != nil {
		return fmt.Errorf("no response code in line '%s'", line)
	}
	res.StatusCode = StatusCode(code)
	res.StatusMessage = msg

	err = res.Header.Unmarshal(br)
	if err != nil {
		return err
	}

	return (*body)(&res.Body).unmarshal(res.Header, br)
}

// Marshal encodes a Response.
func (res Response) Marshal() ([]byte, error) {
	if res.StatusCode < 100 || res.StatusCode > 999 {
		return nil, fmt.Errorf("invalid status code: %d", res.StatusCode)
	}

	if res.StatusMessage == "" {
		res.StatusMessage = res.StatusCode.message()
	}

	var sb strings.Builder
	sb.WriteString(rtspProtocol10 + " " + strconv.FormatInt(int64(res.StatusCode), 10) + " " + res.StatusMessage + "\r\n")

	if res.Header == nil {
		res.Header = make(Header)
	}

	if len(res.Body) != 0 {
		res.Header["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(res.Body)), 10)}
	}

	res.Header.MarshalTo(&sb, "CSeq")
	sb.Write(res.Body)

	return []byte(sb.String()), nil
}

// String implements fmt.Stringer.
func (res Response) String() string {
	buf, _ := res.Marshal()
	return string(buf)
}
