package mediactl

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/mediactl/internal/base64stream"
	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/conn"
	"github.com/bluenviron/mediactl/pkg/liberrors"
)

const (
	tunnelHTTPContentType = "application/x-rtsp-tunnelled"
)

// clientTunnelHTTP tunnels RTSP through a pair of HTTP connections.
// Responses are read from the GET connection, requests are written,
// base64-encoded, into the body of the POST connection.
type clientTunnelHTTP struct {
	readChan  net.Conn
	writeChan net.Conn
	w         io.Writer
}

func (c *clientTunnelHTTP) Read(p []byte) (int, error) {
	return c.readChan.Read(p)
}

func (c *clientTunnelHTTP) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *clientTunnelHTTP) Close() error {
	c.readChan.Close()
	if c.writeChan != nil {
		c.writeChan.Close()
	}
	return nil
}

func (c *clientTunnelHTTP) LocalAddr() net.Addr {
	return c.readChan.LocalAddr()
}

func (c *clientTunnelHTTP) RemoteAddr() net.Addr {
	return c.readChan.RemoteAddr()
}

func (c *clientTunnelHTTP) SetDeadline(t time.Time) error {
	err := c.readChan.SetDeadline(t)
	if err != nil {
		return err
	}
	return c.writeChan.SetDeadline(t)
}

func (c *clientTunnelHTTP) SetReadDeadline(t time.Time) error {
	return c.readChan.SetReadDeadline(t)
}

func (c *clientTunnelHTTP) SetWriteDeadline(t time.Time) error {
	return c.writeChan.SetWriteDeadline(t)
}

// SyscallConn allows the scheduler to monitor the GET connection.
func (c *clientTunnelHTTP) SyscallConn() (syscall.RawConn, error) {
	sc, ok := pollTarget(c.readChan).(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection doesn't expose a socket descriptor")
	}
	return sc.SyscallConn()
}

func tunnelRequestURI(u *base.URL) string {
	return (&url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}).RequestURI()
}

func newClientTunnelHTTP(
	ctx context.Context,
	dialContext func(ctx context.Context, network, address string) (net.Conn, error),
	addr string,
	u *base.URL,
	tlsConfig *tls.Config,
	nextCSeq func() int,
	userAgent string,
) (*clientTunnelHTTP, *conn.Conn, error) {
	c := &clientTunnelHTTP{}

	var err error
	c.readChan, err = dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	if tlsConfig != nil {
		c.readChan = tls.Client(c.readChan, tlsConfig)
	}

	ok := false

	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if dl, hasDeadline := ctx.Deadline(); hasDeadline {
		c.readChan.SetDeadline(dl)
	}

	cookie := strings.ReplaceAll(uuid.New().String(), "-", "")
	uri := tunnelRequestURI(u)

	// do not use http.Request, since the GET response is never closed
	// and its body contains the RTSP stream.
	_, err = c.readChan.Write([]byte(
		"GET " + uri + " HTTP/1.1\r\n" +
			"Host: " + addr + "\r\n" +
			"CSeq: " + strconv.FormatInt(int64(nextCSeq()), 10) + "\r\n" +
			"User-Agent: " + userAgent + "\r\n" +
			"x-sessioncookie: " + cookie + "\r\n" +
			"Accept: " + tunnelHTTPContentType + "\r\n" +
			"Pragma: no-cache\r\n" +
			"Cache-Control: no-cache\r\n" +
			"\r\n",
	))
	if err != nil {
		return nil, nil, liberrors.ErrClientTunnelFailed{Err: err}
	}

	cc := conn.NewConn(c)

	res, err := cc.ReadHTTPStatus()
	if err != nil {
		return nil, nil, liberrors.ErrClientTunnelFailed{Err: err}
	}

	if res.StatusCode != 200 {
		return nil, nil, liberrors.ErrClientTunnelFailed{
			Err: fmt.Errorf("bad status code: %d (%s)", res.StatusCode, res.StatusMessage),
		}
	}

	c.writeChan, err = dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, liberrors.ErrClientTunnelFailed{Err: err}
	}

	if tlsConfig != nil {
		c.writeChan = tls.Client(c.writeChan, tlsConfig)
	}

	if dl, hasDeadline := ctx.Deadline(); hasDeadline {
		c.writeChan.SetDeadline(dl)
	}

	// the server doesn't reply to the POST request.
	_, err = c.writeChan.Write([]byte(
		"POST " + uri + " HTTP/1.1\r\n" +
			"Host: " + addr + "\r\n" +
			"CSeq: " + strconv.FormatInt(int64(nextCSeq()), 10) + "\r\n" +
			"User-Agent: " + userAgent + "\r\n" +
			"x-sessioncookie: " + cookie + "\r\n" +
			"Content-Type: " + tunnelHTTPContentType + "\r\n" +
			"Pragma: no-cache\r\n" +
			"Cache-Control: no-cache\r\n" +
			"Content-Length: 32767\r\n" +
			"Expires: Sun, 9 Jan 1972 00:00:00 GMT\r\n" +
			"\r\n",
	))
	if err != nil {
		return nil, nil, liberrors.ErrClientTunnelFailed{Err: err}
	}

	c.readChan.SetDeadline(time.Time{})
	c.writeChan.SetDeadline(time.Time{})

	c.w = base64stream.NewWriter(c.writeChan)

	ok = true
	return c, cc, nil
}
