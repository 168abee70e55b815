package mediactl

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediactl/internal/base64stream"
	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/conn"
)

type testReadWriter struct {
	r io.Reader
	w io.Writer
}

func (rw *testReadWriter) Read(p []byte) (int, error) {
	return rw.r.Read(p)
}

func (rw *testReadWriter) Write(p []byte) (int, error) {
	return rw.w.Write(p)
}

func serveOptions(t *testing.T, conn *conn.Conn, expectedCSeq string) {
	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, base.Options, req.Method)
	require.Equal(t, base.MustParseURL("rtsp://localhost:8554/stream?key=val"), req.URL)
	require.Equal(t, base.HeaderValue{expectedCSeq}, req.Header["CSeq"])

	err = conn.WriteResponse(&base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"CSeq":   req.Header["CSeq"],
			"Public": base.HeaderValue{"DESCRIBE, SETUP, PLAY"},
		},
	})
	require.NoError(t, err)
}

func TestClientTunnelHTTP(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:8554")
	require.NoError(t, err)
	defer l.Close()

	serverDone := make(chan struct{})
	defer func() { <-serverDone }()
	go func() {
		defer close(serverDone)

		getConn, err := l.Accept()
		require.NoError(t, err)
		defer getConn.Close()

		getReq, err := http.ReadRequest(bufio.NewReader(getConn))
		require.NoError(t, err)
		require.Equal(t, http.MethodGet, getReq.Method)
		require.Equal(t, "/stream?key=val", getReq.RequestURI)
		require.Equal(t, "1", getReq.Header.Get("CSeq"))
		require.Equal(t, "application/x-rtsp-tunnelled", getReq.Header.Get("Accept"))
		require.Equal(t, "no-cache", getReq.Header.Get("Pragma"))
		require.Equal(t, "no-cache", getReq.Header.Get("Cache-Control"))

		cookie := getReq.Header.Get("x-sessioncookie")
		require.Len(t, cookie, 32)

		_, err = getConn.Write([]byte("HTTP/1.0 200 OK\r\n" +
			"Content-Type: application/x-rtsp-tunnelled\r\n" +
			"Cache-Control: no-cache\r\n" +
			"\r\n"))
		require.NoError(t, err)

		postConn, err := l.Accept()
		require.NoError(t, err)
		defer postConn.Close()

		postReq, err := http.ReadRequest(bufio.NewReader(postConn))
		require.NoError(t, err)
		require.Equal(t, http.MethodPost, postReq.Method)
		require.Equal(t, "2", postReq.Header.Get("CSeq"))
		require.Equal(t, cookie, postReq.Header.Get("x-sessioncookie"))
		require.Equal(t, "application/x-rtsp-tunnelled", postReq.Header.Get("Content-Type"))
		require.Equal(t, int64(32767), postReq.ContentLength)

		conn := conn.NewConn(&testReadWriter{
			r: base64stream.NewReader(postReq.Body),
			w: getConn,
		})

		serveOptions(t, conn, "3")
		serveOptions(t, conn, "4")
	}()

	c := Client{
		Tunnel: TunnelHTTP,
	}
	err = c.Start()
	require.NoError(t, err)
	defer c.Close()

	u := base.MustParseURL("rtsp://localhost:8554/stream?key=val")

	for i := 0; i < 2; i++ {
		methods, _, err := c.Options(u)
		require.NoError(t, err)
		require.Equal(t, []base.Method{base.Describe, base.Setup, base.Play}, methods)
	}

	require.Equal(t, 4, c.CSeq())
}

func TestClientTunnelHTTPRefused(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:8554")
	require.NoError(t, err)
	defer l.Close()

	serverDone := make(chan struct{})
	defer func() { <-serverDone }()
	go func() {
		defer close(serverDone)

		nconn, err := l.Accept()
		require.NoError(t, err)
		defer nconn.Close()

		_, err = http.ReadRequest(bufio.NewReader(nconn))
		require.NoError(t, err)

		_, err = nconn.Write([]byte("HTTP/1.1 404 Not Found\r\n\r\n"))
		require.NoError(t, err)
	}()

	c := Client{
		Tunnel: TunnelHTTP,
	}
	err = c.Start()
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Options(base.MustParseURL("rtsp://localhost:8554/stream"))
	require.EqualError(t, err, "connect() to localhost:8554 failed: "+
		"HTTP tunneling setup failed: bad status code: 404 (Not Found)")
}

func TestClientTunnelWebSocket(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:8554")
	require.NoError(t, err)
	defer l.Close()

	serverDone := make(chan struct{})

	s := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer close(serverDone)

			require.Equal(t, "/stream", r.URL.Path)
			require.Equal(t, "key=val", r.URL.RawQuery)

			wc, err := (&websocket.Upgrader{
				Subprotocols: []string{"rtsp.onvif.org"},
			}).Upgrade(w, r, nil)
			require.NoError(t, err)
			defer wc.Close()

			require.Equal(t, "rtsp.onvif.org", wc.Subprotocol())

			for _, cseq := range []string{"1", "2"} {
				msgType, msg, err := wc.ReadMessage()
				require.NoError(t, err)
				require.Equal(t, websocket.BinaryMessage, msgType)

				// each request is a single message
				var req base.Request
				br := bufio.NewReader(bytes.NewReader(msg))
				err = req.Unmarshal(br)
				require.NoError(t, err)
				require.Equal(t, 0, br.Buffered())
				require.Equal(t, base.Options, req.Method)
				require.Equal(t, base.HeaderValue{cseq}, req.Header["CSeq"])

				byts, err := base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"CSeq":   req.Header["CSeq"],
						"Public": base.HeaderValue{"DESCRIBE, SETUP, PLAY"},
					},
				}.Marshal()
				require.NoError(t, err)

				// a response can be split across messages
				err = wc.WriteMessage(websocket.BinaryMessage, byts[:10])
				require.NoError(t, err)
				err = wc.WriteMessage(websocket.BinaryMessage, byts[10:])
				require.NoError(t, err)
			}
		}),
	}
	go s.Serve(l)
	defer s.Close()

	c := Client{
		Tunnel: TunnelWebSocket,
	}
	err = c.Start()
	require.NoError(t, err)
	defer c.Close()

	u := base.MustParseURL("rtsp://localhost:8554/stream?key=val")

	for i := 0; i < 2; i++ {
		methods, _, err := c.Options(u)
		require.NoError(t, err)
		require.Equal(t, []base.Method{base.Describe, base.Setup, base.Play}, methods)
	}

	<-serverDone
}
