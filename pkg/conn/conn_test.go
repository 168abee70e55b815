package conn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediactl/pkg/base"
)

func TestRead(t *testing.T) {
	for _, ca := range []struct {
		name string
		enc  []byte
		dec  interface{}
	}{
		{
			"request",
			[]byte("OPTIONS rtsp://example.com/media.mp4 RTSP/1.0\r\n" +
				"CSeq: 1\r\n" +
				"\r\n"),
			&base.Request{
				Method: base.Options,
				URL:    base.MustParseURL("rtsp://example.com/media.mp4"),
				Header: base.Header{
					"CSeq": base.HeaderValue{"1"},
				},
			},
		},
		{
			"response",
			[]byte("\r\nRTSP/1.0 200 OK\r\n" +
				"CSeq: 1\r\n" +
				"\r\n"),
			&base.Response{
				StatusCode:    200,
				StatusMessage: "OK",
				Header: base.Header{
					"CSeq": base.HeaderValue{"1"},
				},
			},
		},
		{
			"frame",
			[]byte{0x24, 0x6, 0x0, 0x4, 0x1, 0x2, 0x3, 0x4},
			&base.InterleavedFrame{
				Channel: 6,
				Payload: []byte{0x01, 0x02, 0x03, 0x04},
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			buf := bytes.NewBuffer(ca.enc)
			conn := NewConn(buf)
			dec, err := conn.Read()
			require.NoError(t, err)
			require.Equal(t, ca.dec, dec)
		})
	}
}

func TestReadResponseSkipsFrames(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	buf.Write([]byte{0x24, 0x0, 0x0, 0x3, 'a', 'b', 'c'})
	buf.Write([]byte("\r\n"))
	buf.Write([]byte{0x24, 0x1, 0x0, 0x2, 'R', 'T'})
	buf.Write([]byte("RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n"))

	var frames []*base.InterleavedFrame
	conn := NewConn(buf)
	res, err := conn.ReadResponse(func(fr *base.InterleavedFrame) {
		frames = append(frames, fr)
	})
	require.NoError(t, err)
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Equal(t, []*base.InterleavedFrame{
		{Channel: 0, Payload: []byte("abc")},
		{Channel: 1, Payload: []byte("RT")},
	}, frames)
	require.Equal(t, 0, conn.Buffered())
}

func TestReadResponseTruncated(t *testing.T) {
	conn := NewConn(bytes.NewBuffer([]byte{0x24, 0x0, 0x0, 0x10, 'a'}))
	_, err := conn.ReadResponse(nil)
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConn(&buf)

	err := conn.WriteRequest(&base.Request{
		Method: base.Options,
		URL:    base.MustParseURL("rtsp://example.com/media.mp4"),
		Header: base.Header{
			"CSeq": base.HeaderValue{"1"},
		},
	})
	require.NoError(t, err)

	err = conn.WriteResponse(&base.Response{
		StatusCode: base.StatusMethodNotAllowed,
		Header: base.Header{
			"CSeq": base.HeaderValue{"1"},
		},
	})
	require.NoError(t, err)

	err = conn.WriteInterleavedFrame(&base.InterleavedFrame{
		Channel: 1,
		Payload: []byte{0x01},
	})
	require.NoError(t, err)

	require.Equal(t, "OPTIONS rtsp://example.com/media.mp4 RTSP/1.0\r\nCSeq: 1\r\n\r\n"+
		"RTSP/1.0 405 Method Not Allowed\r\nCSeq: 1\r\n\r\n"+
		"\x24\x01\x00\x01\x01", buf.String())
}

func TestReadHTTPStatus(t *testing.T) {
	buf := bytes.NewBuffer([]byte("HTTP/1.0 200 OK\r\n" +
		"Content-Type: application/x-rtsp-tunnelled\r\n" +
		"\r\n" +
		"RTSP/1.0 200 OK\r\n" +
		"CSeq: 1\r\n" +
		"\r\n"))
	conn := NewConn(buf)

	s, err := conn.ReadHTTPStatus()
	require.NoError(t, err)
	require.Equal(t, 200, s.StatusCode)
	require.Equal(t, base.HeaderValue{"application/x-rtsp-tunnelled"}, s.Header["Content-Type"])

	res, err := conn.ReadResponse(nil)
	require.NoError(t, err)
	require.Equal(t, base.StatusOK, res.StatusCode)
}

func TestWriteInvalid(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConn(&buf)

	err := conn.WriteRequest(&base.Request{
		URL: base.MustParseURL("rtsp://example.com/media.mp4"),
	})
	require.EqualError(t, err, "method is empty")

	err = conn.WriteResponse(&base.Response{
		StatusCode: 42,
	})
	require.EqualError(t, err, "invalid status code: 42")

	require.Equal(t, 0, buf.Len())
}
