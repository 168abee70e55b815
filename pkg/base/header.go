package base

import (
	"bufio"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	headerMaxEntryCount = 255
	headerMaxLineLength = 2048 + 512
)

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "rtp-info":
		return "RTP-Info"

	case "www-authenticate":
		return "WWW-Authenticate"

	case "cseq":
		return "CSeq"

	case "call-id":
		return "Call-ID"
	}
	return http.CanonicalHeaderKey(in)
}

// HeaderValue is an header value.
type HeaderValue []string

// Header is a header map, present in both Requests and Responses.
// It is shared by RTSP and SIP messages.
type Header map[string]HeaderValue

// Unmarshal decodes header lines, up to and including the empty line.
// Lines can be terminated by CRLF or by a bare LF.
func (h *Header) Unmarshal(rb *bufio.Reader) error {
	*h = make(Header)

	for {
		line, err := readLine(rb, headerMaxLineLength)
		if err != nil {
			return err
		}

		if line == "" {
			break
		}

		if len(*h) >= headerMaxEntryCount {
			return fmt.Errorf("headers count exceeds %d", headerMaxEntryCount)
		}

		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return fmt.Errorf("invalid header line '%s'", line)
		}

		key := headerKeyNormalize(strings.TrimSpace(line[:i]))

		// https://tools.ietf.org/html/rfc2616
		// The field value MAY be preceded by any amount of spaces
		val := strings.TrimLeft(line[i+1:], " \t")

		(*h)[key] = append((*h)[key], val)
	}

	return nil
}

// Get returns the first value of a header, if present.
func (h Header) Get(key string) (string, bool) {
	v, ok := h[headerKeyNormalize(key)]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Set replaces the values of a header.
func (h Header) Set(key string, val string) {
	h[headerKeyNormalize(key)] = HeaderValue{val}
}

func (h Header) keys() []string {
	// sort headers by key
	// in order to obtain deterministic results
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MarshalTo appends header lines and the terminating empty line to sb,
// writing keys in the given order first and the remaining ones sorted.
func (h Header) MarshalTo(sb *strings.Builder, first ...string) {
	written := make(map[string]struct{}, len(first))

	writeKey := func(key string) {
		for _, val := range h[key] {
			sb.WriteString(key + ": " + val + "\r\n")
		}
		written[key] = struct{}{}
	}

	for _, key := range first {
		if _, ok := h[key]; ok {
			writeKey(key)
		}
	}

	for _, key := range h.keys() {
		if _, ok := written[key]; !ok {
			writeKey(key)
		}
	}

	sb.WriteString("\r\n")
}
