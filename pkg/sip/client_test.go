package sip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	sipparser "github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/mediactl/pkg/auth"
	"github.com/bluenviron/mediactl/pkg/delayqueue"
	"github.com/bluenviron/mediactl/pkg/environment"
	"github.com/bluenviron/mediactl/pkg/liberrors"
	"github.com/bluenviron/mediactl/pkg/scheduler"
)

const testAnswer = "v=0\r\n" +
	"o=- 1 1 IN IP4 127.0.0.1\r\n" +
	"s=call\r\n" +
	"c=IN IP4 127.0.0.1\r\n" +
	"t=0 0\r\n" +
	"m=audio 9000 RTP/AVP 0\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n"

var testServerAddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5060}

// testPacketConn is a socket driven by a VirtualPoller.
// Requests written by the client are passed to onRequest, that can
// deliver responses with deliver().
type testPacketConn struct {
	poller    *scheduler.VirtualPoller
	requests  []*sipparser.Request
	queue     [][]byte
	onRequest func(req *sipparser.Request)
}

func (c *testPacketConn) SchedulerHandle() scheduler.Handle {
	return 100
}

func (c *testPacketConn) deliver(res *sipparser.Response) {
	c.queue = append(c.queue, []byte(res.String()))
	c.poller.SetReady(c.SchedulerHandle(), scheduler.MaskReadable)
}

func (c *testPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	if len(c.queue) == 0 {
		return 0, nil, fmt.Errorf("no data")
	}

	n := copy(p, c.queue[0])
	c.queue = c.queue[1:]

	if len(c.queue) != 0 {
		c.poller.SetReady(c.SchedulerHandle(), scheduler.MaskReadable)
	}

	return n, testServerAddr, nil
}

func (c *testPacketConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	req, err := parseTestRequest(p)
	if err != nil {
		return 0, err
	}

	c.requests = append(c.requests, req)
	if c.onRequest != nil {
		c.onRequest(req)
	}

	return len(p), nil
}

func (c *testPacketConn) Close() error {
	return nil
}

func (c *testPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 5062}
}

func (c *testPacketConn) SetDeadline(_ time.Time) error {
	return nil
}

func (c *testPacketConn) SetReadDeadline(_ time.Time) error {
	return nil
}

func (c *testPacketConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (c *testPacketConn) methods() []sipparser.RequestMethod {
	ret := make([]sipparser.RequestMethod, len(c.requests))
	for i, req := range c.requests {
		ret[i] = req.Method
	}
	return ret
}

func newTestEnvironment() (*environment.Environment, *scheduler.VirtualPoller, *delayqueue.ManualClock) {
	clock := delayqueue.NewManualClock(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
	poller := &scheduler.VirtualPoller{Clock: clock}
	env := environment.New(&scheduler.Scheduler{
		Clock:  clock,
		Poller: poller,
	})
	return env, poller, clock
}

func parseTestRequest(byts []byte) (*sipparser.Request, error) {
	msg, err := sipparser.NewParser().ParseSIP(byts)
	if err != nil {
		return nil, err
	}

	req, ok := msg.(*sipparser.Request)
	if !ok {
		return nil, fmt.Errorf("not a request")
	}
	return req, nil
}

// testHeader returns the first value of a header, or an empty string.
func testHeader(msg interface{ GetHeader(string) sipparser.Header }, name string) string {
	h := msg.GetHeader(name)
	if h == nil {
		return ""
	}
	return h.Value()
}

func testResponse(req *sipparser.Request, code int, reason string, toTag string) *sipparser.Response {
	to := testHeader(req, "To")
	if toTag != "" {
		to += ";tag=" + toTag
	}

	res := sipparser.NewResponse(sipparser.StatusCode(code), reason)
	res.AppendHeader(sipparser.NewHeader("Via", testHeader(req, "Via")))
	res.AppendHeader(sipparser.NewHeader("From", testHeader(req, "From")))
	res.AppendHeader(sipparser.NewHeader("To", to))
	res.AppendHeader(sipparser.NewHeader("Call-ID", testHeader(req, "Call-ID")))
	res.AppendHeader(sipparser.NewHeader("CSeq", testHeader(req, "CSeq")))
	res.SetBody(nil)
	return res
}

func TestClientInvite(t *testing.T) {
	env, poller, clock := newTestEnvironment()
	start := clock.Now()

	conn := &testPacketConn{poller: poller}
	conn.onRequest = func(req *sipparser.Request) {
		if req.Method != MethodInvite {
			return
		}

		conn.deliver(testResponse(req, 100, "Trying", ""))

		res := testResponse(req, 200, "OK", "a6c85cf")
		res.AppendHeader(sipparser.NewHeader("Content-Type", "application/sdp"))
		res.SetBody([]byte(testAnswer))
		conn.deliver(res)
	}

	c := Client{
		Env:      env,
		Conn:     conn,
		UserName: "alice",
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	sdp, err := c.Invite(context.Background(), "sip:bob@127.0.0.1", nil)
	require.NoError(t, err)
	require.Equal(t, []byte(testAnswer), sdp)
	require.Equal(t, 9000, c.Answer().MediaDescriptions[0].MediaName.Port.Value)

	state, ok := c.State()
	require.True(t, ok)
	require.Equal(t, StateTerminated, state)

	require.Equal(t, []sipparser.RequestMethod{MethodInvite, MethodAck}, conn.methods())
	require.Less(t, clock.Now().Sub(start), 500*time.Millisecond)

	invite := conn.requests[0]
	require.Equal(t, "sip:bob@127.0.0.1", invite.Recipient.String())
	require.Equal(t, "1 INVITE", testHeader(invite, "CSeq"))
	require.Equal(t, "<sip:bob@127.0.0.1>", testHeader(invite, "To"))
	require.Equal(t, "70", testHeader(invite, "Max-Forwards"))
	require.Equal(t, "<sip:alice@127.0.0.2:5062>", testHeader(invite, "Contact"))
	require.Equal(t, "application/sdp", testHeader(invite, "Content-Type"))
	require.Contains(t, string(invite.Body()), "m=audio 8000 RTP/AVP 0\r\n")
	require.Contains(t, string(invite.Body()), "a=rtpmap:0 PCMU/8000\r\n")

	branch, ok := invite.Via().Params.Get("branch")
	require.True(t, ok)
	require.Regexp(t, "^z9hG4bK", branch)

	fromTag, ok := invite.From().Params.Get("tag")
	require.True(t, ok)
	require.NotEmpty(t, fromTag)

	// the transaction terminates on the 2xx response. The ACK is sent by
	// the client, acting as transaction user, in a new transaction.
	ack := conn.requests[1]
	require.Equal(t, "1 ACK", testHeader(ack, "CSeq"))
	require.Equal(t, "<sip:bob@127.0.0.1>;tag=a6c85cf", testHeader(ack, "To"))
	require.Equal(t, testHeader(invite, "Call-ID"), testHeader(ack, "Call-ID"))
	ackBranch, _ := ack.Via().Params.Get("branch")
	require.NotEqual(t, branch, ackBranch)

	err = c.Bye()
	require.NoError(t, err)

	bye := conn.requests[2]
	require.Equal(t, MethodBye, bye.Method)
	require.Equal(t, "2 BYE", testHeader(bye, "CSeq"))
	require.Equal(t, "<sip:bob@127.0.0.1>;tag=a6c85cf", testHeader(bye, "To"))
	require.Equal(t, testHeader(invite, "Call-ID"), testHeader(bye, "Call-ID"))
	require.Equal(t, testHeader(invite, "From"), testHeader(bye, "From"))

	err = c.Bye()
	require.Equal(t, liberrors.ErrSIPNoCall{}, err)
}

func TestClientInviteTransaction(t *testing.T) {
	for _, ca := range []struct {
		name     string
		respond  func(env *environment.Environment, conn *testPacketConn, req *sipparser.Request)
		err      error
		methods  []sipparser.RequestMethod
		duration time.Duration
	}{
		{
			"no response",
			func(_ *environment.Environment, _ *testPacketConn, _ *sipparser.Request) {},
			liberrors.ErrSIPNoResponse{},
			// retransmissions after 0.5, 1.5, 3.5, 7.5, 15.5, 31.5 seconds
			[]sipparser.RequestMethod{
				MethodInvite, MethodInvite, MethodInvite, MethodInvite,
				MethodInvite, MethodInvite, MethodInvite,
			},
			32 * time.Second,
		},
		{
			"provisional response stops retransmissions",
			func(env *environment.Environment, conn *testPacketConn, req *sipparser.Request) {
				if req.Method != MethodInvite {
					return
				}
				conn.deliver(testResponse(req, 180, "Ringing", "a6c85cf"))
				env.Scheduler.ScheduleDelayedTask(5*time.Second, func() {
					conn.deliver(testResponse(req, 200, "OK", "a6c85cf"))
				})
			},
			nil,
			[]sipparser.RequestMethod{MethodInvite, MethodAck},
			5 * time.Second,
		},
		{
			"retransmission then success",
			func(env *environment.Environment, conn *testPacketConn, req *sipparser.Request) {
				// answer only the second attempt
				if req.Method != MethodInvite || len(conn.requests) != 2 {
					return
				}
				conn.deliver(testResponse(req, 200, "OK", "a6c85cf"))
			},
			nil,
			[]sipparser.RequestMethod{MethodInvite, MethodInvite, MethodAck},
			500 * time.Millisecond,
		},
		{
			"client error",
			func(_ *environment.Environment, conn *testPacketConn, req *sipparser.Request) {
				if req.Method != MethodInvite {
					return
				}
				conn.deliver(testResponse(req, 486, "Busy Here", "a6c85cf"))
			},
			liberrors.ErrSIPBadStatusCode{Code: 486, Reason: "Busy Here"},
			[]sipparser.RequestMethod{MethodInvite},
			0,
		},
		{
			"server error",
			func(env *environment.Environment, conn *testPacketConn, req *sipparser.Request) {
				if req.Method != MethodInvite {
					return
				}
				res := testResponse(req, 503, "Service Unavailable", "a6c85cf")
				conn.deliver(res)

				// a retransmitted final response is acknowledged again
				env.Scheduler.ScheduleDelayedTask(2*time.Second, func() {
					conn.deliver(res)
				})
			},
			liberrors.ErrSIPBadStatusCode{Code: 503, Reason: "Service Unavailable"},
			[]sipparser.RequestMethod{MethodInvite, MethodAck, MethodAck},
			32 * time.Second,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			env, poller, clock := newTestEnvironment()
			start := clock.Now()

			conn := &testPacketConn{poller: poller}
			conn.onRequest = func(req *sipparser.Request) {
				ca.respond(env, conn, req)
			}

			c := Client{
				Env:  env,
				Conn: conn,
			}
			err := c.Start()
			require.NoError(t, err)
			defer c.Close()

			_, err = c.Invite(context.Background(), "sip:bob@127.0.0.1", nil)
			require.Equal(t, ca.err, err)
			require.Equal(t, ca.methods, conn.methods())

			elapsed := clock.Now().Sub(start)
			require.GreaterOrEqual(t, elapsed, ca.duration)
			require.Less(t, elapsed, ca.duration+200*time.Millisecond)

			if ca.err != nil {
				require.Equal(t, ca.err.Error(), env.ResultMsg())
			}

			for _, req := range conn.requests {
				if req.Method == MethodInvite {
					require.Equal(t, "1 INVITE", testHeader(req, "CSeq"))
				} else {
					require.Equal(t, "1 ACK", testHeader(req, "CSeq"))
				}
			}

			switch ca.name {
			case "server error":
				// the ACK of a non-2xx response is sent by the transaction and
				// shares the branch of the INVITE
				require.Equal(t, testHeader(conn.requests[0], "Via"), testHeader(conn.requests[1], "Via"))

			case "provisional response stops retransmissions":
				// the ACK of a 2xx response is sent by the client, acting as
				// transaction user, with a new branch
				require.NotEqual(t, testHeader(conn.requests[0], "Via"), testHeader(conn.requests[1], "Via"))
			}
		})
	}
}

func TestClientInviteAuth(t *testing.T) {
	for _, ca := range []string{
		"proxy",
		"server",
	} {
		t.Run(ca, func(t *testing.T) {
			env, poller, _ := newTestEnvironment()

			authHeader := "Proxy-Authorization"
			challengeHeader := "Proxy-Authenticate"
			challengeCode := 407
			if ca == "server" {
				authHeader = "Authorization"
				challengeHeader = "WWW-Authenticate"
				challengeCode = 401
			}

			conn := &testPacketConn{poller: poller}
			conn.onRequest = func(req *sipparser.Request) {
				if req.Method != MethodInvite {
					return
				}

				if req.GetHeader(authHeader) == nil {
					res := testResponse(req, challengeCode, "Unauthorized", "")
					for _, v := range auth.GenerateWWWAuthenticate("atlanta.com", "84a4cc6f") {
						res.AppendHeader(sipparser.NewHeader(challengeHeader, v))
					}
					conn.deliver(res)
					return
				}

				err := auth.Verify(string(req.Method), headerValues(req.GetHeaders(authHeader)),
					"alice", "secret", "atlanta.com", "84a4cc6f")
				require.NoError(t, err)

				conn.deliver(testResponse(req, 200, "OK", "a6c85cf"))
			}

			c := Client{
				Env:  env,
				Conn: conn,
			}
			err := c.Start()
			require.NoError(t, err)
			defer c.Close()

			_, err = c.InviteWithPassword(context.Background(), "sip:bob@127.0.0.1", "alice", "secret")
			require.NoError(t, err)
			require.Equal(t, []sipparser.RequestMethod{MethodInvite, MethodInvite, MethodAck}, conn.methods())

			first, second := conn.requests[0], conn.requests[1]
			require.Equal(t, "1 INVITE", testHeader(first, "CSeq"))
			require.Equal(t, "2 INVITE", testHeader(second, "CSeq"))
			require.Equal(t, testHeader(first, "Call-ID"), testHeader(second, "Call-ID"))
			require.Equal(t, testHeader(first, "From"), testHeader(second, "From"))

			// the validated credentials are used within the dialog
			err = c.Bye()
			require.NoError(t, err)

			bye := conn.requests[3]
			err = auth.Verify(string(MethodBye), headerValues(bye.GetHeaders(authHeader)),
				"alice", "secret", "atlanta.com", "84a4cc6f")
			require.NoError(t, err)
		})
	}
}

func TestClientInviteAuthFailed(t *testing.T) {
	env, poller, _ := newTestEnvironment()

	conn := &testPacketConn{poller: poller}
	conn.onRequest = func(req *sipparser.Request) {
		if req.Method != MethodInvite {
			return
		}
		res := testResponse(req, 407, "Proxy Authentication Required", "")
		for _, v := range auth.GenerateWWWAuthenticate("atlanta.com", "84a4cc6f") {
			res.AppendHeader(sipparser.NewHeader("Proxy-Authenticate", v))
		}
		conn.deliver(res)
	}

	c := Client{
		Env:  env,
		Conn: conn,
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.InviteWithPassword(context.Background(), "sip:bob@127.0.0.1", "alice", "wrong")
	require.Equal(t, liberrors.ErrSIPBadStatusCode{Code: 407, Reason: "Proxy Authentication Required"}, err)

	// exactly one retry
	require.Equal(t, []sipparser.RequestMethod{MethodInvite, MethodInvite}, conn.methods())

	_, ok := c.State()
	require.False(t, ok)
}

func TestClientInviteCanceled(t *testing.T) {
	env, poller, _ := newTestEnvironment()

	conn := &testPacketConn{poller: poller}

	c := Client{
		Env:  env,
		Conn: conn,
	}
	err := c.Start()
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	env.Scheduler.ScheduleDelayedTask(time.Second, cancel)

	_, err = c.Invite(ctx, "sip:bob@127.0.0.1", nil)
	require.Equal(t, context.Canceled, err)

	// timers of the abandoned transaction are canceled
	require.Equal(t, 0, env.Scheduler.PendingTasks())

	_, err = c.Invite(context.Background(), "bob@127.0.0.1", nil)
	require.Equal(t, liberrors.ErrSIPInvalidURI{URI: "bob@127.0.0.1"}, err)
}

func TestClientUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:5070")
	require.NoError(t, err)
	defer pc.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Wait()

	go func() {
		defer wg.Done()

		buf := make([]byte, 2048)
		n, addr, err := pc.ReadFrom(buf)
		require.NoError(t, err)

		req, err := parseTestRequest(buf[:n])
		require.NoError(t, err)
		require.Equal(t, MethodInvite, req.Method)

		res := testResponse(req, 200, "OK", "a6c85cf")
		res.SetBody([]byte(testAnswer))
		_, err = pc.WriteTo([]byte(res.String()), addr)
		require.NoError(t, err)

		n, _, err = pc.ReadFrom(buf)
		require.NoError(t, err)

		req, err = parseTestRequest(buf[:n])
		require.NoError(t, err)
		require.Equal(t, MethodAck, req.Method)
	}()

	env := environment.New(nil)

	c := Client{
		Env:           env,
		LocalPort:     5072,
		SignalingDSCP: 46,
	}
	err = c.Start()
	require.NoError(t, err)
	defer c.Close()

	// the socket is shared through the environment
	require.True(t, env.HasTables())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sdp, err := c.Invite(ctx, "sip:bob@127.0.0.1:5070", nil)
	require.NoError(t, err)
	require.Equal(t, []byte(testAnswer), sdp)

	c.Close()
	require.False(t, env.HasTables())
}
