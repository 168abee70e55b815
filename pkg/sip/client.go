package sip

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	sipparser "github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	psdp "github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/bluenviron/mediactl/pkg/auth"
	"github.com/bluenviron/mediactl/pkg/environment"
	"github.com/bluenviron/mediactl/pkg/liberrors"
	"github.com/bluenviron/mediactl/pkg/scheduler"
)

const (
	clientUserAgent = "mediactl"
	maxForwards     = "70"
	udpMaxPayload   = 65535

	// RFC 3261, 8.1.1.7
	branchMagicCookie = "z9hG4bK"
)

func randomID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// call is the state of a call, from INVITE to BYE.
type call struct {
	uri        *sipparser.Uri
	remoteAddr net.Addr
	callID     string
	fromTag    string
	toTag      string
	to         string
	cseq       int
	branch     string

	// header used to authenticate requests, Authorization or Proxy-Authorization.
	authHeader string
	// authenticator validated by a successful challenge/response.
	validatedAuth *auth.Authenticator

	tx *inviteTransaction
}

// Client is a SIP user agent client that places calls.
// It is driven by the scheduler of the environment: Invite() runs the
// event loop until the INVITE transaction terminates.
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
	// parameters (all optional)
	//
	// socket used to send and receive requests.
	// It defaults to a UDP socket bound to LocalPort, shared through the environment.
	Conn net.PacketConn
	// local UDP port.
	// It defaults to a random port.
	LocalPort int
	// user name that appears in From and Contact.
	// It defaults to the user agent.
	UserName string
	// user agent header.
	// It defaults to "mediactl".
	UserAgent string
	// payload type offered in the session description.
	// It defaults to 0 (PCMU).
	PayloadType uint8
	// encoding name of the offered payload type.
	// It defaults to "PCMU".
	MimeSubtype string
	// RTP port offered in the session description.
	// It defaults to 8000.
	ClientRTPPort int
	// estimate of the round-trip time (RFC 3261, timer T1).
	// It defaults to 500ms.
	T1 time.Duration
	// time spent absorbing retransmitted final responses.
	// It defaults to 32 seconds.
	TimerD time.Duration
	// DSCP value set on outgoing signaling packets.
	// It defaults to 0 (no marking).
	SignalingDSCP int

	//
	// callbacks (all optional)
	//
	// called before every request.
	OnRequest func(*sipparser.Request)
	// called after every response.
	OnResponse func(*sipparser.Response)

	log        *logrus.Entry
	mediumName string
	conn       net.PacketConn
	socketPort int
	handle     scheduler.Handle
	readBuf    []byte
	parser     *sipparser.Parser
	cseq       int
	call       *call
	answer     *psdp.SessionDescription
}

// Start initializes the client and opens the socket.
func (c *Client) Start() error {
	if c.Env == nil {
		c.Env = environment.New(nil)
	}
	if c.UserAgent == "" {
		c.UserAgent = clientUserAgent
	}
	if c.UserName == "" {
		c.UserName = c.UserAgent
	}
	if c.MimeSubtype == "" {
		c.MimeSubtype = "PCMU"
	}
	if c.ClientRTPPort == 0 {
		c.ClientRTPPort = 8000
	}
	if c.T1 == 0 {
		c.T1 = 500 * time.Millisecond
	}
	if c.TimerD == 0 {
		c.TimerD = 32 * time.Second
	}
	if c.OnRequest == nil {
		c.OnRequest = func(*sipparser.Request) {
		}
	}
	if c.OnResponse == nil {
		c.OnResponse = func(*sipparser.Response) {
		}
	}

	c.log = c.Env.Log("sip")
	c.mediumName = c.Env.AddMedium(c)

	if c.Conn != nil {
		c.conn = c.Conn
	} else {
		var err error
		c.conn, err = c.Env.AcquireSocket(c.LocalPort, func() (net.PacketConn, error) {
			return net.ListenPacket("udp4", ":"+strconv.FormatInt(int64(c.LocalPort), 10))
		})
		if err != nil {
			c.Env.RemoveMedium(c.mediumName)
			return err
		}
		c.socketPort = c.LocalPort

		if c.SignalingDSCP != 0 {
			err = ipv4.NewPacketConn(c.conn).SetTOS(c.SignalingDSCP << 2)
			if err != nil {
				c.log.WithError(err).Warn("unable to set DSCP")
			}
		}
	}

	h, err := scheduler.HandleOf(c.conn)
	if err != nil {
		c.closeSocket()
		c.Env.RemoveMedium(c.mediumName)
		return c.result(err)
	}
	c.handle = h

	c.readBuf = make([]byte, udpMaxPayload)
	c.parser = sipparser.NewParser()
	c.Env.Scheduler.SetHandler(c.handle, scheduler.MaskReadable, c.handleReadable)

	return nil
}

// Close releases the socket.
// A call in progress is abandoned without sending BYE.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}

	if c.call != nil && c.call.tx != nil && c.call.tx.state != StateTerminated {
		c.call.tx.terminate(nil, liberrors.ErrClientTerminated{})
	}
	c.call = nil

	c.Env.Scheduler.DisableHandler(c.handle)
	c.closeSocket()
	c.Env.RemoveMedium(c.mediumName)
}

func (c *Client) closeSocket() {
	if c.Conn == nil {
		c.Env.ReleaseSocket(c.socketPort) //nolint:errcheck
	}
	c.conn = nil
}

func (c *Client) result(err error) error {
	if err != nil {
		c.Env.SetResultErr(err)
	}
	return err
}

// Answer returns the session description sent by the server in the
// response to the last successful INVITE.
func (c *Client) Answer() *psdp.SessionDescription {
	return c.answer
}

// localHost returns the address that the server can use to reach the client.
func (c *Client) localHost(remote net.Addr) (string, int) {
	la, ok := c.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1", c.LocalPort
	}

	if !la.IP.IsUnspecified() && la.IP != nil {
		return la.IP.String(), la.Port
	}

	// pick the address of the interface that routes to the server
	if ra, ok := remote.(*net.UDPAddr); ok {
		tmp, err := net.DialUDP("udp4", nil, ra)
		if err == nil {
			defer tmp.Close()
			return tmp.LocalAddr().(*net.UDPAddr).IP.String(), la.Port
		}
	}

	return "127.0.0.1", la.Port
}

func (c *Client) offer(host string) ([]byte, error) {
	sd := &psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: uint64(c.cseq),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: psdp.SessionName(c.UserAgent + " session"),
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: host},
		},
		TimeDescriptions: []psdp.TimeDescription{{
			Timing: psdp.Timing{StartTime: 0, StopTime: 0},
		}},
		MediaDescriptions: []*psdp.MediaDescription{{
			MediaName: psdp.MediaName{
				Media:   "audio",
				Port:    psdp.RangedPort{Value: c.ClientRTPPort},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.FormatInt(int64(c.PayloadType), 10)},
			},
			Attributes: []psdp.Attribute{{
				Key:   "rtpmap",
				Value: fmt.Sprintf("%d %s/8000", c.PayloadType, c.MimeSubtype),
			}},
		}},
	}

	return sd.Marshal()
}

func (c *Client) send(byts []byte, addr net.Addr) error {
	_, err := c.conn.WriteTo(byts, addr)
	return err
}

func (c *Client) sendRequest(req *sipparser.Request, addr net.Addr) error {
	c.OnRequest(req)

	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"uri":    req.Recipient.String(),
	}).Debug("sending request")

	return c.send([]byte(req.String()), addr)
}

func (c *Client) newRequest(cl *call, method sipparser.RequestMethod, cseq int, branch string) *sipparser.Request {
	host, port := c.localHost(cl.remoteAddr)
	hostPort := net.JoinHostPort(host, strconv.FormatInt(int64(port), 10))

	to := cl.to
	if cl.toTag != "" {
		to += ";tag=" + cl.toTag
	}

	req := sipparser.NewRequest(method, *cl.uri)
	req.AppendHeader(sipparser.NewHeader("Via", "SIP/2.0/UDP "+hostPort+";branch="+branch+";rport"))
	req.AppendHeader(sipparser.NewHeader("Max-Forwards", maxForwards))
	req.AppendHeader(sipparser.NewHeader("From",
		"\""+c.UserName+"\" <sip:"+c.UserName+"@"+host+">;tag="+cl.fromTag))
	req.AppendHeader(sipparser.NewHeader("To", to))
	req.AppendHeader(sipparser.NewHeader("Call-ID", cl.callID+"@"+host))
	req.AppendHeader(sipparser.NewHeader("CSeq", strconv.FormatInt(int64(cseq), 10)+" "+string(method)))
	req.AppendHeader(sipparser.NewHeader("Contact", "<sip:"+c.UserName+"@"+hostPort+">"))
	req.AppendHeader(sipparser.NewHeader("User-Agent", c.UserAgent))
	return req
}

func (c *Client) authorize(req *sipparser.Request, a *auth.Authenticator, header string) {
	if a == nil || header == "" {
		return
	}

	if v, ok := a.Authorization(string(req.Method), req.Recipient.String()); ok {
		for _, e := range v {
			req.AppendHeader(sipparser.NewHeader(header, e))
		}
	}
}

func (c *Client) handleReadable(_ scheduler.Handle, _ scheduler.Mask) {
	n, addr, err := c.conn.ReadFrom(c.readBuf)
	if err != nil {
		c.log.WithError(err).Warn("unable to read from socket")
		return
	}

	msg, err := parseMessage(c.parser, c.readBuf[:n])
	if err != nil {
		c.log.WithError(err).WithField("from", addr.String()).Warn("invalid message")
		return
	}

	switch msg := msg.(type) {
	case *sipparser.Response:
		c.handleResponse(msg)

	case *sipparser.Request:
		c.log.WithField("method", msg.Method).Debug("ignoring request sent by the server")
	}
}

func (c *Client) handleResponse(res *sipparser.Response) {
	c.OnResponse(res)

	cseq := res.CSeq()
	if cseq == nil {
		c.log.Warn("invalid response: CSeq is missing")
		return
	}

	c.log.WithFields(logrus.Fields{
		"status": res.StatusCode,
		"cseq":   cseq.SeqNo,
		"method": cseq.MethodName,
	}).Debug("received response")

	cl := c.call
	if cl == nil || cl.tx == nil || cseq.MethodName != MethodInvite || int(cseq.SeqNo) != cl.cseq {
		return
	}

	if callID := res.CallID(); callID == nil || !strings.HasPrefix(callID.Value(), cl.callID) {
		return
	}

	if cl.toTag == "" && res.StatusCode > 100 {
		cl.toTag = toTag(res)
	}

	cl.tx.handleResponse(res)
}

// runTransaction sends an INVITE and runs the event loop until the
// transaction terminates.
func (c *Client) runTransaction(ctx context.Context, cl *call, a *auth.Authenticator) (*sipparser.Response, error) {
	c.cseq++
	cl.cseq = c.cseq
	cl.branch = branchMagicCookie + randomID()
	cl.toTag = ""

	host, _ := c.localHost(cl.remoteAddr)

	sdp, err := c.offer(host)
	if err != nil {
		return nil, err
	}

	req := c.newRequest(cl, MethodInvite, cl.cseq, cl.branch)
	req.AppendHeader(sipparser.NewHeader("Content-Type", "application/sdp"))
	c.authorize(req, a, cl.authHeader)
	req.SetBody(sdp)
	byts := []byte(req.String())

	var final *sipparser.Response
	var future scheduler.Future

	cl.tx = &inviteTransaction{
		sched:  c.Env.Scheduler,
		log:    c.log.WithField("cseq", cl.cseq),
		t1:     c.T1,
		timerD: c.TimerD,
		sendRequest: func() error {
			c.OnRequest(req)
			return c.send(byts, cl.remoteAddr)
		},
		sendAck: func(res *sipparser.Response) error {
			// the ACK of a non-2xx response belongs to the INVITE transaction
			ack := c.newRequest(cl, MethodAck, cl.cseq, cl.branch)
			if to := res.To(); to != nil {
				ack.ReplaceHeader(sipparser.NewHeader("To", to.Value()))
			}
			ack.SetBody(nil)
			return c.sendRequest(ack, cl.remoteAddr)
		},
		onTerminated: func(res *sipparser.Response, err error) {
			final = res
			future.Resolve(err)
		},
	}

	c.log.WithFields(logrus.Fields{
		"uri":  cl.uri.String(),
		"cseq": cl.cseq,
	}).Debug("sending INVITE")

	err = cl.tx.start()
	if err != nil {
		return nil, err
	}

	err = c.Env.Scheduler.DoEventLoop(ctx, &future)
	if err != nil {
		if !future.Done() {
			cl.tx.terminate(nil, err)
		}
		return nil, err
	}

	return final, nil
}

// Invite places a call and returns the session description of the answer.
// If a is not nil and the server challenges the request with 401 or 407,
// the request is repeated once with credentials.
func (c *Client) Invite(ctx context.Context, uri string, a *auth.Authenticator) ([]byte, error) {
	sdp, err := c.invite(ctx, uri, a)
	return sdp, c.result(err)
}

// InviteWithPassword places a call authenticating with the given credentials.
func (c *Client) InviteWithPassword(ctx context.Context, uri string, user string, pass string) ([]byte, error) {
	a := auth.NewAuthenticator(user, pass)
	return c.Invite(ctx, uri, &a)
}

func (c *Client) invite(ctx context.Context, uri string, a *auth.Authenticator) ([]byte, error) {
	if c.call != nil && c.call.tx != nil && c.call.tx.state != StateTerminated {
		return nil, liberrors.ErrSIPTransactionInProgress{}
	}

	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	remoteAddr, err := net.ResolveUDPAddr("udp4", uriHostPort(u))
	if err != nil {
		return nil, err
	}

	cl := &call{
		uri:        u,
		remoteAddr: remoteAddr,
		callID:     randomID(),
		fromTag:    randomID()[:16],
		to:         "<" + uri + ">",
	}
	c.call = cl

	// the authenticator is mutated by the challenge
	var working *auth.Authenticator
	if a != nil {
		tmp := *a
		working = &tmp
	}

	var res *sipparser.Response

	for attempt := 0; ; attempt++ {
		res, err = c.runTransaction(ctx, cl, working)
		if err != nil {
			c.call = nil
			return nil, err
		}

		if attempt != 0 || working == nil || !working.HasCredentials() ||
			(res.StatusCode != 401 && res.StatusCode != 407) {
			break
		}

		challenge, authHeader := headerValues(res.GetHeaders("WWW-Authenticate")), "Authorization"
		if res.StatusCode == 407 {
			challenge, authHeader = headerValues(res.GetHeaders("Proxy-Authenticate")), "Proxy-Authorization"
		}

		if !working.ApplyChallenge(challenge) {
			break
		}

		c.log.WithFields(logrus.Fields{
			"realm":  working.Realm(),
			"status": res.StatusCode,
		}).Debug("retrying with authentication")

		cl.authHeader = authHeader
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.call = nil
		return nil, liberrors.ErrSIPBadStatusCode{Code: int(res.StatusCode), Reason: res.Reason}
	}

	if cl.authHeader != "" {
		cl.validatedAuth = working
	}

	// the ACK of a 2xx response is sent by the user agent, with a new branch
	ack := c.newRequest(cl, MethodAck, cl.cseq, branchMagicCookie+randomID())
	c.authorize(ack, cl.validatedAuth, cl.authHeader)
	ack.SetBody(nil)
	err = c.sendRequest(ack, cl.remoteAddr)
	if err != nil {
		c.call = nil
		return nil, err
	}

	body := res.Body()

	c.answer = nil
	if len(body) != 0 {
		var sd psdp.SessionDescription
		err = sd.Unmarshal(body)
		if err != nil {
			c.log.WithError(err).Warn("invalid session description in answer")
		} else {
			c.answer = &sd
		}
	}

	return body, nil
}

// Bye ends the call established by the last successful INVITE.
func (c *Client) Bye() error {
	return c.result(c.bye())
}

func (c *Client) bye() error {
	cl := c.call
	if cl == nil || cl.tx == nil || cl.tx.state != StateTerminated {
		return liberrors.ErrSIPNoCall{}
	}

	c.cseq++

	req := c.newRequest(cl, MethodBye, c.cseq, branchMagicCookie+randomID())
	c.authorize(req, cl.validatedAuth, cl.authHeader)
	req.SetBody(nil)

	c.call = nil

	return c.sendRequest(req, cl.remoteAddr)
}

// State returns the state of the INVITE transaction of the current call.
func (c *Client) State() (TransactionState, bool) {
	if c.call == nil || c.call.tx == nil {
		return 0, false
	}
	return c.call.tx.state, true
}
