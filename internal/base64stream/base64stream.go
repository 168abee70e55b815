// Package base64stream contains base64 codecs for stream-based connections
// where each write is encoded independently, as done by RTSP-over-HTTP tunnels.
package base64stream

import (
	"encoding/base64"
	"io"
)

const (
	readSize = 1024
)

// decodable returns the length of the longest prefix of buf that can be
// decoded on its own. Decoding stops after the first padded quantum,
// since the following bytes belong to another write.
func decodable(buf []byte) int {
	n := 0
	for n+4 <= len(buf) {
		q := buf[n : n+4]
		n += 4
		if q[2] == '=' || q[3] == '=' {
			break
		}
	}
	return n
}

// Reader decodes a sequence of base64 chunks, each one possibly padded.
type Reader struct {
	r      io.Reader
	enc    []byte
	dec    []byte
	encBuf []byte
}

// NewReader allocates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:      r,
		encBuf: make([]byte, readSize),
	}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.dec) == 0 {
		n := decodable(r.enc)
		if n == 0 {
			rn, err := r.r.Read(r.encBuf)
			if rn == 0 && err != nil {
				return 0, err
			}
			r.enc = append(r.enc, r.encBuf[:rn]...)
			continue
		}

		out := make([]byte, base64.StdEncoding.DecodedLen(n))
		dn, err := base64.StdEncoding.Decode(out, r.enc[:n])
		if err != nil {
			return 0, err
		}

		r.enc = r.enc[n:]
		r.dec = out[:dn]
	}

	n := copy(p, r.dec)
	r.dec = r.dec[n:]
	return n, nil
}

// Writer encodes every Write independently.
type Writer struct {
	w io.Writer
}

// NewWriter allocates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write implements io.Writer. It returns the number of bytes of p that
// have been encoded and written.
func (w *Writer) Write(p []byte) (int, error) {
	buf := make([]byte, base64.StdEncoding.EncodedLen(len(p)))
	base64.StdEncoding.Encode(buf, p)

	_, err := w.w.Write(buf)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
