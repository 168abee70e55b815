package base

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

const (
	maxContentLength = 128 * 1024
)

// ErrBodyTruncated is returned when the stream ends before Content-Length
// bytes of body have been received.
type ErrBodyTruncated struct {
	Expected int
	Received int
}

// Error implements the error interface.
func (e ErrBodyTruncated) Error() string {
	return fmt.Sprintf("body was truncated: expected %d bytes, received %d",
		e.Expected, e.Received)
}

type body []byte

func (b *body) unmarshal(header Header, rb *bufio.Reader) error {
	cls, ok := header["Content-Length"]
	if !ok || len(cls) != 1 {
		*b = nil
		return nil
	}

	cl, err := strconv.ParseInt(cls[0], 10, 64)
	if err != nil || cl < 0 {
		return fmt.Errorf("invalid Content-Length")
	}

	if cl > maxContentLength {
		return fmt.Errorf("Content-Length exceeds %d (it's %d)",
			maxContentLength, cl)
	}

	// the body may arrive in several segments; keep reading until
	// Content-Length bytes are available or the stream ends.
	*b = make([]byte, cl)
	n, err := io.ReadFull(rb, *b)
	if err != nil {
		return ErrBodyTruncated{Expected: int(cl), Received: n}
	}

	return nil
}
