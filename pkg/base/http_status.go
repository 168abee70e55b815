package base

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// HTTPStatus is the head of a HTTP response, used by tunnels that carry
// RTSP inside HTTP. The body is not read, since it contains the tunneled stream.
type HTTPStatus struct {
	Proto         string
	StatusCode    int
	StatusMessage string
	Header        Header
}

// Unmarshal reads the status line and the header of a HTTP response.
func (s *HTTPStatus) Unmarshal(br *bufio.Reader) error {
	err := SkipLineBreaks(br)
	if err != nil {
		return err
	}

	line, err := readLine(br, responseMaxLineLength)
	if err != nil {
		return err
	}

	proto, rest, _ := strings.Cut(line, " ")
	if !strings.HasPrefix(proto, "HTTP/") {
		return fmt.Errorf("expected HTTP response, got '%s'", line)
	}
	s.Proto = proto

	codeStr, msg, _ := strings.Cut(rest, " ")

	code, err := strconv.ParseInt(codeStr, 10, 32)
	if err != nil {
		return fmt.Errorf("no response code in line '%s'", line)
	}
	s.StatusCode = int(code)
	s.StatusMessage = msg

	return s.Header.Unmarshal(br)
}
