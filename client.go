/*
Package mediactl is a client-side RTSP 1.0 and SIP protocol engine for the
Go programming language. Engines run on top of a single-threaded cooperative
scheduler, shared through an environment.

Examples are available in the examples folder.
*/
package mediactl

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediactl/pkg/auth"
	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/conn"
	"github.com/bluenviron/mediactl/pkg/delayqueue"
	"github.com/bluenviron/mediactl/pkg/description"
	"github.com/bluenviron/mediactl/pkg/environment"
	"github.com/bluenviron/mediactl/pkg/headers"
	"github.com/bluenviron/mediactl/pkg/liberrors"
	"github.com/bluenviron/mediactl/pkg/scheduler"
)

const (
	clientUserAgent = "mediactl"
)

func isRedirectable(m base.Method) bool {
	return m == base.Options || m == base.Describe || m == base.Announce
}

func parsePublic(v base.HeaderValue) []base.Method {
	var ret []base.Method
	for _, entry := range v {
		for _, m := range strings.Split(entry, ",") {
			m = strings.TrimSpace(m)
			if m != "" {
				ret = append(ret, base.Method(m))
			}
		}
	}
	return ret
}

func findBaseURL(res *base.Response, u *base.URL) (*base.URL, error) {
	for _, key := range []string{"Content-Base", "Content-Location"} {
		if cb, ok := res.Header[key]; ok {
			if len(cb) != 1 {
				return nil, fmt.Errorf("invalid %s: '%v'", key, cb)
			}

			ret, err := base.ParseURL(cb[0])
			if err != nil {
				return nil, fmt.Errorf("invalid %s: '%v'", key, cb)
			}

			// add credentials
			ret.User = u.User

			return ret, nil
		}
	}

	return u.Clone(), nil
}

// Tunnel is a method to tunnel RTSP through another protocol.
type Tunnel int

// tunnels.
const (
	TunnelNone Tunnel = iota
	TunnelHTTP
	TunnelWebSocket
)

// String implements fmt.Stringer.
func (t Tunnel) String() string {
	switch t {
	case TunnelNone:
		return "none"
	case TunnelHTTP:
		return "HTTP"
	case TunnelWebSocket:
		return "WebSocket"
	}
	return "unknown"
}

// ClientOnPacketRTPCtx is the context of a RTP packet.
type ClientOnPacketRTPCtx struct {
	Media  *description.Media
	Packet *rtp.Packet
}

// ClientOnPacketRTCPCtx is the context of a RTCP packet.
type ClientOnPacketRTCPCtx struct {
	Media  *description.Media
	Packet rtcp.Packet
}

// Client is a RTSP client.
// Commands are synchronous: each one sends a request and waits for the
// response. Session keepalives and requests sent by the server are handled
// by the scheduler of the environment, that must be run by the caller
// between commands.
//
// Failures are returned as errors and are also written into the
// result message of the environment.
type Client struct {
	//
	// environment (optional)
	//
	// execution context.
	// It defaults to a new Environment.
	Env *environment.Environment

	//
	// RTSP parameters (all optional)
	//
	// timeout of read operations. It is also used as connection timeout.
	// It defaults to 10 seconds.
	ReadTimeout time.Duration
	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration
	// a TLS configuration to connect to TLS (RTSPS) servers.
	// It defaults to nil.
	TLSConfig *tls.Config
	// user agent header.
	// It defaults to "mediactl".
	UserAgent string
	// tunnel the connection through HTTP or WebSocket.
	// It defaults to TunnelNone.
	Tunnel Tunnel
	// port of the tunnel server.
	// It defaults to the port of the URL.
	TunnelPort int
	// disable being redirected to other servers, that can happen during
	// Options(), Describe() and Announce().
	// It defaults to false.
	RedirectDisable bool
	// disable session keepalives.
	// It defaults to false.
	KeepaliveDisable bool

	//
	// system functions (all optional)
	//
	// function used to initialize the TCP client.
	// It defaults to (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)

	//
	// callbacks (all optional)
	//
	// called before every request.
	OnRequest func(*base.Request)
	// called after every response.
	OnResponse func(*base.Response)
	// called when the server sends a request. The request is refused.
	OnServerRequest func(*base.Request)
	// called when receiving a RTP packet on the control connection.
	OnPacketRTP func(*ClientOnPacketRTPCtx)
	// called when receiving a RTCP packet on the control connection.
	OnPacketRTCP func(*ClientOnPacketRTCPCtx)
	// called when there's a non-fatal decoding error of RTP or RTCP packets.
	OnDecodeError func(error)

	//
	// private
	//

	log               *logrus.Entry
	mediumName        string
	nconn             net.Conn
	conn              *conn.Conn
	cseq              int
	session           string
	sessionTimeout    *uint
	baseURL           *base.URL
	authenticator     auth.Authenticator
	publicMethods     []base.Method
	medias            []*clientMedia
	tcpChannelCount   int
	incomingHandle    scheduler.Handle
	incomingActive    bool
	syncReadStep      uint64
	keepaliveToken    delayqueue.Token
	keepaliveURL      *base.URL
	keepaliveInterval time.Duration
}

// Start initializes the client. It must be called before any command.
// The connection is opened by the first command.
func (c *Client) Start() error {
	// environment
	if c.Env == nil {
		c.Env = environment.New(nil)
	}

	// RTSP parameters
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = clientUserAgent
	}
	if c.Tunnel < TunnelNone || c.Tunnel > TunnelWebSocket {
		return fmt.Errorf("invalid tunnel: %v", c.Tunnel)
	}

	// system functions
	if c.DialContext == nil {
		c.DialContext = (&net.Dialer{}).DialContext
	}

	// callbacks
	if c.OnRequest == nil {
		c.OnRequest = func(*base.Request) {
		}
	}
	if c.OnResponse == nil {
		c.OnResponse = func(*base.Response) {
		}
	}
	if c.OnServerRequest == nil {
		c.OnServerRequest = func(*base.Request) {
		}
	}
	if c.OnPacketRTP == nil {
		c.OnPacketRTP = func(*ClientOnPacketRTPCtx) {
		}
	}
	if c.OnPacketRTCP == nil {
		c.OnPacketRTCP = func(*ClientOnPacketRTCPCtx) {
		}
	}
	if c.OnDecodeError == nil {
		c.OnDecodeError = func(error) {
		}
	}

	c.log = c.Env.Log("rtsp")
	c.mediumName = c.Env.AddMedium(c)

	return nil
}

// Close closes the connection and releases every resource.
func (c *Client) Close() {
	c.Reset()

	if c.mediumName != "" {
		c.Env.RemoveMedium(c.mediumName)
		c.mediumName = ""
	}
}

// Name returns the name assigned to the client by the environment.
func (c *Client) Name() string {
	return c.mediumName
}

// Reset closes the connection and clears the base URL, the session
// and the authenticator. The CSeq counter is preserved.
func (c *Client) Reset() {
	c.keepaliveStop()
	c.connClose()
	c.baseURL = nil
	c.session = ""
	c.sessionTimeout = nil
	c.authenticator.Reset()
	c.publicMethods = nil
	c.medias = nil
	c.tcpChannelCount = 0
}

// CSeq returns the sequence number of the last request.
func (c *Client) CSeq() int {
	return c.cseq
}

// LastSessionID returns the last session ID received from the server.
func (c *Client) LastSessionID() string {
	return c.session
}

// SessionTimeout returns the session timeout advertised by the server.
func (c *Client) SessionTimeout() (uint, bool) {
	if c.sessionTimeout == nil {
		return 0, false
	}
	return *c.sessionTimeout, true
}

// BaseURL returns the base URL of the current presentation.
func (c *Client) BaseURL() *base.URL {
	return c.baseURL
}

// PublicMethods returns the methods advertised by the server in the
// response to OPTIONS.
func (c *Client) PublicMethods() []base.Method {
	return c.publicMethods
}

func (c *Client) result(err error) error {
	if err != nil {
		c.Env.SetResultErr(err)
	}
	return err
}

func (c *Client) connOpen(u *base.URL) error {
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	addr := u.HostPort()
	if c.Tunnel != TunnelNone && c.TunnelPort != 0 {
		addr = net.JoinHostPort(u.Hostname(), strconv.FormatInt(int64(c.TunnelPort), 10))
	}

	var tlsConfig *tls.Config
	if u.Scheme == "rtsps" {
		if c.TLSConfig != nil {
			tlsConfig = c.TLSConfig.Clone()
		} else {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.ServerName = u.Hostname()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.ReadTimeout)
	defer cancel()

	c.log.WithFields(logrus.Fields{"address": addr, "tunnel": c.Tunnel}).Debug("connecting")

	switch c.Tunnel {
	case TunnelHTTP:
		tu, cc, err := newClientTunnelHTTP(ctx, c.DialContext, addr, u, tlsConfig, c.nextCSeq, c.UserAgent)
		if err != nil {
			return liberrors.ErrClientConnect{Address: addr, Err: err}
		}
		c.nconn = tu
		c.conn = cc

	case TunnelWebSocket:
		tu, err := newClientTunnelWebSocket(ctx, c.DialContext, addr, u, tlsConfig)
		if err != nil {
			return liberrors.ErrClientConnect{Address: addr, Err: err}
		}
		c.nconn = tu
		c.conn = conn.NewConn(tu)

	default:
		nconn, err := c.DialContext(ctx, "tcp", addr)
		if err != nil {
			return liberrors.ErrClientConnect{Address: addr, Err: err}
		}

		if tlsConfig != nil {
			nconn = tls.Client(nconn, tlsConfig)
		}

		c.nconn = nconn
		c.conn = conn.NewConn(nconn)
	}

	return nil
}

func (c *Client) connClose() {
	c.incomingStop()

	if c.nconn != nil {
		c.nconn.Close()
		c.nconn = nil
		c.conn = nil
	}
}

func (c *Client) nextCSeq() int {
	c.cseq++
	return c.cseq
}

func (c *Client) handleFrame(fr *base.InterleavedFrame) {
	cm, isRTP := c.findMediaByChannel(fr.Channel)
	if cm == nil {
		c.log.WithField("channel", fr.Channel).Debug("discarding interleaved frame")
		return
	}

	if isRTP {
		var pkt rtp.Packet
		err := pkt.Unmarshal(fr.Payload)
		if err != nil {
			c.OnDecodeError(err)
			return
		}

		c.OnPacketRTP(&ClientOnPacketRTPCtx{
			Media:  cm.media,
			Packet: &pkt,
		})
		return
	}

	pkts, err := rtcp.Unmarshal(fr.Payload)
	if err != nil {
		c.OnDecodeError(err)
		return
	}

	for _, pkt := range pkts {
		c.OnPacketRTCP(&ClientOnPacketRTCPCtx{
			Media:  cm.media,
			Packet: pkt,
		})
	}
}

// do sends a request and reads its response.
func (c *Client) do(req *base.Request) (*base.Response, error) {
	if c.nconn == nil {
		err := c.connOpen(req.URL)
		if err != nil {
			return nil, err
		}
	}

	if req.Header == nil {
		req.Header = make(base.Header)
	}

	cseq := c.nextCSeq()
	req.Header["CSeq"] = base.HeaderValue{strconv.FormatInt(int64(cseq), 10)}
	req.Header["User-Agent"] = base.HeaderValue{c.UserAgent}

	if v, ok := c.authenticator.Authorization(string(req.Method), req.URL.CloneWithoutCredentials().String()); ok {
		req.Header["Authorization"] = v
	} else {
		delete(req.Header, "Authorization")
	}

	c.OnRequest(req)

	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"cseq":   cseq,
		"url":    req.URL.CloneWithoutCredentials().String(),
	}).Debug("sending request")

	c.nconn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	err := c.conn.WriteRequest(req)
	if err != nil {
		c.connClose()
		return nil, liberrors.ErrClientSendFailed{Method: req.Method, Err: err}
	}

	var res *base.Response

	for {
		c.nconn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		var what interface{}
		what, err = c.conn.Read()
		if err != nil {
			c.connClose()

			var terr base.ErrBodyTruncated
			if errors.As(err, &terr) {
				return nil, liberrors.ErrClientResponseTruncated{Err: err}
			}
			return nil, err
		}

		// frames and server requests can precede the response
		switch what := what.(type) {
		case *base.InterleavedFrame:
			c.handleFrame(what)
			continue

		case *base.Request:
			c.handleServerRequest(what)
			continue
		}

		res = what.(*base.Response)

		// skip late responses to previous requests
		if v, ok := res.Header["CSeq"]; ok && len(v) == 1 {
			if n, err2 := strconv.ParseInt(v[0], 10, 64); err2 == nil && int(n) < cseq {
				c.log.WithField("cseq", n).Debug("discarding response to a previous request")
				continue
			}
		}
		break
	}

	c.syncReadStep = c.Env.Scheduler.Steps()

	c.OnResponse(res)

	c.log.WithFields(logrus.Fields{
		"cseq":   cseq,
		"status": int(res.StatusCode),
	}).Debug("received response")

	if v, ok := res.Header["Session"]; ok {
		var sx headers.Session
		err = sx.Unmarshal(v)
		if err != nil {
			return nil, liberrors.ErrClientSessionHeaderInvalid{Err: err}
		}
		c.session = sx.Session

		if sx.Timeout != nil && *sx.Timeout > 0 {
			c.sessionTimeout = sx.Timeout
		}
	}

	return res, nil
}

// doAuthenticated calls do and, if the server replies with 401 and
// credentials are available, repeats the request exactly once with an
// Authorization header computed from the challenge.
func (c *Client) doAuthenticated(req *base.Request) (*base.Response, error) {
	if user, pass, ok := req.URL.Credentials(); ok &&
		(c.authenticator.Username() != user || c.authenticator.Password() != pass) {
		c.authenticator.SetUsernameAndPassword(user, pass, false)
	}

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != base.StatusUnauthorized {
		return res, nil
	}

	if !c.authenticator.HasCredentials() ||
		!c.authenticator.ApplyChallenge(res.Header["WWW-Authenticate"]) {
		return res, liberrors.ErrClientAuthFailed{Code: res.StatusCode}
	}

	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"realm":  c.authenticator.Realm(),
		"scheme": c.authenticator.Method(),
	}).Debug("retrying with authentication")

	res, err = c.do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == base.StatusUnauthorized {
		return res, liberrors.ErrClientAuthFailed{Code: res.StatusCode}
	}

	return res, nil
}

func redirectURL(res *base.Response, prev *base.URL) (*base.URL, error) {
	loc, ok := res.Header["Location"]
	if !ok || len(loc) != 1 {
		return nil, liberrors.ErrClientRedirectWithoutLocation{}
	}

	ru, err := base.ParseURL(loc[0])
	if err != nil {
		return nil, liberrors.ErrClientRedirectWithoutLocation{}
	}

	if ru.User == nil {
		ru.User = prev.User
	}

	return ru, nil
}

// doFollowingRedirect calls doAuthenticated and follows a single 301/302
// redirect. The connection state is reset before the redirect target is
// contacted, therefore the target gets its own authentication attempt.
func (c *Client) doFollowingRedirect(req *base.Request) (*base.Response, error) {
	res, err := c.doAuthenticated(req)
	if err != nil || !res.StatusCode.IsRedirect() || c.RedirectDisable || !isRedirectable(req.Method) {
		return res, err
	}

	ru, err := redirectURL(res, req.URL)
	if err != nil {
		return res, err
	}

	c.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"status":   int(res.StatusCode),
		"location": ru.CloneWithoutCredentials().String(),
	}).Info("following redirect")

	c.Reset()

	req.URL = ru
	delete(req.Header, "Session")

	res, err = c.doAuthenticated(req)
	if err != nil {
		return res, err
	}

	if res.StatusCode.IsRedirect() {
		return res, liberrors.ErrClientTooManyRedirects{}
	}

	return res, nil
}

func (c *Client) doOptions(u *base.URL) ([]base.Method, *base.Response, error) {
	res, err := c.doFollowingRedirect(&base.Request{
		Method: base.Options,
		URL:    u,
	})
	if err != nil {
		return nil, res, err
	}

	if res.StatusCode != base.StatusOK {
		return nil, res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	c.publicMethods = parsePublic(res.Header["Public"])

	return c.publicMethods, res, nil
}

// Options sends an OPTIONS request and returns the methods supported by the server.
func (c *Client) Options(u *base.URL) ([]base.Method, *base.Response, error) {
	methods, res, err := c.doOptions(u)
	return methods, res, c.result(err)
}

func (c *Client) doDescribe(u *base.URL) (*description.Session, *base.Response, error) {
	req := &base.Request{
		Method: base.Describe,
		URL:    u,
		Header: base.Header{
			"Accept": base.HeaderValue{"application/sdp"},
		},
	}

	res, err := c.doFollowingRedirect(req)
	if err != nil {
		return nil, res, err
	}

	if res.StatusCode != base.StatusOK {
		return nil, res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	if ct, ok := res.Header["Content-Type"]; ok && len(ct) == 1 {
		// strip encoding information from Content-Type header
		v := strings.TrimSpace(strings.Split(ct[0], ";")[0])

		if !strings.EqualFold(v, "application/sdp") {
			return nil, res, liberrors.ErrClientContentTypeUnsupported{CT: ct}
		}
	}

	body, n := description.StripNUL(res.Body)
	if n != 0 {
		c.log.WithField("count", n).Warn("removed NUL bytes from the session description")
	}

	var sess description.Session
	err = sess.Unmarshal(body)
	if err != nil {
		return nil, res, err
	}

	sess.BaseURL, err = findBaseURL(res, req.URL)
	if err != nil {
		return nil, res, err
	}

	c.baseURL = sess.BaseURL

	return &sess, res, nil
}

// Describe sends a DESCRIBE request and returns the description of the stream.
func (c *Client) Describe(u *base.URL) (*description.Session, *base.Response, error) {
	sess, res, err := c.doDescribe(u)
	return sess, res, c.result(err)
}

func (c *Client) doAnnounce(u *base.URL, sdp []byte) (*base.Response, error) {
	req := &base.Request{
		Method: base.Announce,
		URL:    u,
		Header: base.Header{
			"Content-Type": base.HeaderValue{"application/sdp"},
		},
		Body: sdp,
	}

	res, err := c.doFollowingRedirect(req)
	if err != nil {
		return res, err
	}

	if res.StatusCode != base.StatusOK {
		return res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	c.baseURL = req.URL.Clone()

	return res, nil
}

// Announce sends an ANNOUNCE request that carries a session description.
func (c *Client) Announce(u *base.URL, sdp []byte) (*base.Response, error) {
	res, err := c.doAnnounce(u, sdp)
	return res, c.result(err)
}
