package mediactl

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bluenviron/mediactl/pkg/base"
)

// wsReader reads the content of binary messages as a stream.
type wsReader struct {
	wc  *websocket.Conn
	buf []byte
}

func (r *wsReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		msgType, buf, err := r.wc.ReadMessage()
		if err != nil {
			return 0, err
		}

		if msgType != websocket.BinaryMessage {
			return 0, fmt.Errorf("unexpected message type %v", msgType)
		}

		r.buf = buf
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// clientTunnelWebSocket tunnels RTSP through a WebSocket connection.
// Every write is sent as a binary message.
type clientTunnelWebSocket struct {
	wconn *websocket.Conn
	r     *wsReader
}

func (tu *clientTunnelWebSocket) Read(b []byte) (int, error) {
	return tu.r.Read(b)
}

func (tu *clientTunnelWebSocket) Write(b []byte) (int, error) {
	err := tu.wconn.WriteMessage(websocket.BinaryMessage, b)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func (tu *clientTunnelWebSocket) Close() error {
	return tu.wconn.Close()
}

func (tu *clientTunnelWebSocket) LocalAddr() net.Addr {
	return tu.wconn.LocalAddr()
}

func (tu *clientTunnelWebSocket) RemoteAddr() net.Addr {
	return tu.wconn.RemoteAddr()
}

func (tu *clientTunnelWebSocket) SetDeadline(t time.Time) error {
	return tu.wconn.NetConn().SetDeadline(t)
}

func (tu *clientTunnelWebSocket) SetReadDeadline(t time.Time) error {
	return tu.wconn.SetReadDeadline(t)
}

func (tu *clientTunnelWebSocket) SetWriteDeadline(t time.Time) error {
	return tu.wconn.SetWriteDeadline(t)
}

// SyscallConn allows the scheduler to monitor the underlying connection.
func (tu *clientTunnelWebSocket) SyscallConn() (syscall.RawConn, error) {
	sc, ok := pollTarget(tu.wconn.NetConn()).(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection doesn't expose a socket descriptor")
	}
	return sc.SyscallConn()
}

func newClientTunnelWebSocket(
	ctx context.Context,
	dialContext func(ctx context.Context, network, address string) (net.Conn, error),
	addr string,
	u *base.URL,
	tlsConfig *tls.Config,
) (*clientTunnelWebSocket, error) {
	var ur string
	if tlsConfig != nil {
		ur = "wss"
	} else {
		ur = "ws"
	}
	ur += "://" + addr + tunnelRequestURI(u)

	wconn, _, err := (&websocket.Dialer{
		NetDialContext:  dialContext,
		TLSClientConfig: tlsConfig,
		Subprotocols:    []string{"rtsp.onvif.org"},
	}).DialContext(ctx, ur, nil) //nolint:bodyclose
	if err != nil {
		return nil, err
	}

	return &clientTunnelWebSocket{
		wconn: wconn,
		r:     &wsReader{wc: wconn},
	}, nil
}
