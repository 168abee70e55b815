// Package conn contains a RTSP connection implementation.
package conn

import (
	"bufio"
	"io"

	"github.com/bluenviron/mediactl/pkg/base"
)

const (
	readBufferSize = 4096
)

// Conn is a RTSP connection.
type Conn struct {
	w  io.Writer
	br *bufio.Reader
}

// NewConn allocates a Conn.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		w:  rw,
		br: bufio.NewReaderSize(rw, readBufferSize),
	}
}

// Buffered returns the number of bytes that have already been received
// but not yet consumed.
func (c *Conn) Buffered() int {
	return c.br.Buffered()
}

// Read reads a Request, a Response or an Interleaved frame.
func (c *Conn) Read() (interface{}, error) {
	err := base.SkipLineBreaks(c.br)
	if err != nil {
		return nil, err
	}

	byts, err := c.br.Peek(1)
	if err != nil {
		return nil, err
	}

	if byts[0] == base.InterleavedFrameMagicByte {
		return c.ReadInterleavedFrame()
	}

	byts, err = c.br.Peek(5)
	if err != nil {
		return nil, err
	}

	if string(byts) == "RTSP/" {
		var res base.Response
		err = res.Unmarshal(c.br)
		return &res, err
	}

	return c.ReadRequest()
}

// ReadResponse reads a Response. Interleaved frames that precede the
// response are passed to onFrame, that can be nil, and are not
// considered part of the response.
func (c *Conn) ReadResponse(onFrame func(*base.InterleavedFrame)) (*base.Response, error) {
	for {
		err := base.SkipLineBreaks(c.br)
		if err != nil {
			return nil, err
		}

		byts, err := c.br.Peek(1)
		if err != nil {
			return nil, err
		}

		if byts[0] != base.InterleavedFrameMagicByte {
			break
		}

		fr, err := c.ReadInterleavedFrame()
		if err != nil {
			return nil, err
		}

		if onFrame != nil {
			onFrame(fr)
		}
	}

	var res base.Response
	err := res.Unmarshal(c.br)
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// ReadRequest reads a Request.
func (c *Conn) ReadRequest() (*base.Request, error) {
	var req base.Request
	err := req.Unmarshal(c.br)
	return &req, err
}

// ReadInterleavedFrame reads a InterleavedFrame.
func (c *Conn) ReadInterleavedFrame() (*base.InterleavedFrame, error) {
	var fr base.InterleavedFrame
	err := fr.Unmarshal(c.br)
	return &fr, err
}

// WriteRequest writes a request.
func (c *Conn) WriteRequest(req *base.Request) error {
	buf, err := req.Marshal()
	if err != nil {
		return err
	}
	_, err = c.w.Write(buf)
	return err
}

// WriteResponse writes a response.
func (c *Conn) WriteResponse(res *base.Response) error {
	buf, err := res.Marshal()
	if err != nil {
		return err
	}
	_, err = c.w.Write(buf)
	return err
}

// WriteInterleavedFrame writes an interleaved frame.
func (c *Conn) WriteInterleavedFrame(fr *base.InterleavedFrame) error {
	buf, err := fr.Marshal()
	if err != nil {
		return err
	}
	_, err = c.w.Write(buf)
	return err
}

// ReadHTTPStatus reads the status line and the header of a HTTP response.
// The body, if any, is left in the stream.
func (c *Conn) ReadHTTPStatus() (*base.HTTPStatus, error) {
	var s base.HTTPStatus
	err := s.Unmarshal(c.br)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
