package mediactl

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/liberrors"
	"github.com/bluenviron/mediactl/pkg/scheduler"
)

const (
	// RFC 2326, 12.37
	defaultSessionTimeout = 60
)

func pollTarget(nc net.Conn) interface{} {
	if tc, ok := nc.(*tls.Conn); ok {
		return tc.NetConn()
	}
	return nc
}

// incomingStart registers the control connection on the scheduler, in
// order to process data that the server sends outside of a command:
// interleaved frames and requests.
func (c *Client) incomingStart() {
	if c.incomingActive || c.nconn == nil {
		return
	}

	h, err := scheduler.HandleOf(pollTarget(c.nconn))
	if err != nil {
		c.log.WithError(err).Debug("unable to monitor the control connection")
		return
	}

	c.incomingHandle = h
	c.incomingActive = true
	c.Env.Scheduler.SetHandler(h, scheduler.MaskReadable, c.handleIncoming)

	// data read together with the last response
	if c.conn.Buffered() > 0 {
		c.Env.Scheduler.ScheduleDelayedTask(0, func() {
			if c.incomingActive && c.conn != nil && c.conn.Buffered() > 0 {
				c.handleIncoming(c.incomingHandle, scheduler.MaskReadable)
			}
		})
	}
}

func (c *Client) incomingStop() {
	if !c.incomingActive {
		return
	}

	c.Env.Scheduler.DisableHandler(c.incomingHandle)
	c.incomingActive = false
}

func (c *Client) handleIncoming(_ scheduler.Handle, _ scheduler.Mask) {
	if c.conn == nil {
		return
	}

	// a command run by a timer of this step already consumed the data
	// that made the socket readable. The poller reports what is left.
	if c.conn.Buffered() == 0 && c.syncReadStep == c.Env.Scheduler.Steps() {
		return
	}

	for {
		c.nconn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		what, err := c.conn.Read()
		if err != nil {
			c.log.WithError(err).Warn("control connection closed")
			c.Env.SetResultErr(err)
			c.connClose()
			return
		}

		switch what := what.(type) {
		case *base.InterleavedFrame:
			c.handleFrame(what)

		case *base.Request:
			c.handleServerRequest(what)

		case *base.Response:
			c.log.WithField("status", int(what.StatusCode)).Debug("discarding unexpected response")
		}

		// handle messages that are already buffered, since the
		// socket won't report them as readable.
		if c.conn == nil || c.conn.Buffered() == 0 {
			return
		}
	}
}

// handleServerRequest refuses requests sent by the server.
func (c *Client) handleServerRequest(req *base.Request) {
	c.log.WithField("method", req.Method).Debug("refusing request sent by the server")

	c.OnServerRequest(req)

	res := &base.Response{
		StatusCode: base.StatusMethodNotAllowed,
		Header:     base.Header{},
	}
	if v, ok := req.Header["CSeq"]; ok {
		res.Header["CSeq"] = v
	}

	c.nconn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	err := c.conn.WriteResponse(res)
	if err != nil {
		c.log.WithError(err).Warn("unable to reply to the server")
	}
}

func (c *Client) keepaliveStart(u *base.URL) {
	if c.KeepaliveDisable {
		return
	}

	c.keepaliveURL = u

	if c.keepaliveToken != 0 {
		return
	}

	timeout := uint(defaultSessionTimeout)
	if c.sessionTimeout != nil {
		timeout = *c.sessionTimeout
	}

	c.keepaliveInterval = time.Duration(float64(timeout) * 0.8 * float64(time.Second))
	c.keepaliveToken = c.Env.Scheduler.ScheduleDelayedTask(c.keepaliveInterval, c.keepalive)
}

func (c *Client) keepaliveStop() {
	if c.keepaliveToken == 0 {
		return
	}

	c.Env.Scheduler.UnscheduleDelayedTask(c.keepaliveToken)
	c.keepaliveToken = 0
}

func (c *Client) supportsGetParameter() bool {
	for _, m := range c.publicMethods {
		if m == base.GetParameter {
			return true
		}
	}
	return false
}

func (c *Client) keepalive() {
	c.keepaliveToken = 0

	if c.session == "" || c.keepaliveURL == nil || c.nconn == nil {
		return
	}

	method := base.Options
	if c.supportsGetParameter() {
		method = base.GetParameter
	}

	res, err := c.doAuthenticated(&base.Request{
		Method: method,
		URL:    c.keepaliveURL,
		Header: base.Header{
			"Session": base.HeaderValue{c.session},
		},
	})
	if err == nil && res.StatusCode != base.StatusOK {
		err = liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}
	if err != nil {
		c.log.WithError(err).Warn("keepalive failed")
		c.Env.SetResultErr(err)
	}

	if c.nconn == nil {
		return
	}

	c.keepaliveStart(c.keepaliveURL)
}
