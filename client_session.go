package mediactl

import (
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediactl/pkg/base"
	"github.com/bluenviron/mediactl/pkg/description"
	"github.com/bluenviron/mediactl/pkg/headers"
	"github.com/bluenviron/mediactl/pkg/liberrors"
)

func isMulticastAddress(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsMulticast()
}

func isUnspecifiedAddress(addr string) bool {
	if addr == "" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsUnspecified()
}

// SetupOptions are the options of Setup.
type SetupOptions struct {
	// client RTP port. The RTCP port is RTPPort+1.
	// It is mandatory unless Interleaved is true.
	RTPPort int

	// receive or send RTP and RTCP through the control connection.
	Interleaved bool

	// the client sends the stream (RECORD) instead of receiving it.
	Outgoing bool

	// request multicast delivery when the description doesn't specify
	// a connection address.
	ForceMulticastOnUnspecified bool
}

// PlayRange are the options of Play.
type PlayRange struct {
	// start position. When negative, the Range header is omitted and the
	// server resumes from the current position.
	Start time.Duration

	// end position (optional).
	End *time.Duration

	// playback speed. When 0 or 1, the Scale header is omitted.
	Scale float64
}

func (c *Client) sessionURL(sess *description.Session) (*base.URL, error) {
	if sess != nil {
		return sess.URL()
	}
	if c.baseURL == nil {
		return nil, liberrors.ErrClientNoSession{}
	}
	return c.baseURL, nil
}

func (c *Client) doSetup(sess *description.Session, media *description.Media, opts SetupOptions) (*base.Response, error) {
	u, err := sess.MediaURL(media)
	if err != nil {
		return nil, err
	}

	delivery := headers.TransportDeliveryUnicast
	th := headers.Transport{
		Delivery: &delivery,
	}

	if opts.Interleaved {
		th.Protocol = headers.TransportProtocolTCP
		th.InterleavedIDs = &[2]int{c.tcpChannelCount, c.tcpChannelCount + 1}
	} else {
		if opts.RTPPort == 0 {
			return nil, liberrors.ErrClientClientPortUnknown{}
		}

		th.Protocol = headers.TransportProtocolUDP
		th.ClientPorts = &[2]int{opts.RTPPort, opts.RTPPort + 1}

		if isMulticastAddress(media.ConnectionAddress) ||
			(opts.ForceMulticastOnUnspecified && isUnspecifiedAddress(media.ConnectionAddress)) {
			delivery = headers.TransportDeliveryMulticast
		}
	}

	if opts.Outgoing {
		mode := headers.TransportModeRecord
		th.Mode = &mode
	}

	header := base.Header{
		"Transport": th.Marshal(),
	}

	// aggregate subsequent medias into the same session
	if c.session != "" {
		header["Session"] = base.HeaderValue{c.session}
	}

	res, err := c.doAuthenticated(&base.Request{
		Method: base.Setup,
		URL:    u,
		Header: header,
	})
	if err != nil {
		return res, err
	}

	if res.StatusCode != base.StatusOK {
		return res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	if _, ok := res.Header["Session"]; !ok {
		return res, liberrors.ErrClientSessionHeaderMissing{}
	}

	cm := &clientMedia{
		media:         media,
		url:           u,
		sessionID:     c.session,
		serverAddress: u.Hostname(),
		interleaved:   opts.Interleaved,
		multicast:     delivery == headers.TransportDeliveryMulticast,
	}

	var thRes headers.Transport
	if v, ok := res.Header["Transport"]; ok {
		err = thRes.Unmarshal(v)
		if err != nil {
			return res, liberrors.ErrClientTransportHeaderInvalid{Err: err}
		}
	} else {
		thRes = th
	}

	if thRes.Source != nil {
		cm.serverAddress = *thRes.Source
	}

	if thRes.Delivery != nil {
		cm.multicast = *thRes.Delivery == headers.TransportDeliveryMulticast
	}

	if opts.Interleaved {
		if thRes.InterleavedIDs != nil {
			cm.interleavedIDs = thRes.InterleavedIDs
		} else {
			cm.interleavedIDs = th.InterleavedIDs
		}
		c.tcpChannelCount += 2
	} else {
		cm.clientPorts = th.ClientPorts
		if thRes.ClientPorts != nil {
			cm.clientPorts = thRes.ClientPorts
		}

		cm.serverPorts = thRes.ServerPorts
		if cm.multicast && thRes.Ports != nil {
			cm.serverPorts = thRes.Ports
		}

		if cm.multicast && thRes.Destination != nil {
			cm.serverAddress = *thRes.Destination
		}
	}

	// a media can be set up again
	if prev := c.findMedia(media); prev != nil {
		c.removeMedia(prev)
	}
	c.medias = append(c.medias, cm)
	media.Play = nil

	c.log.WithFields(logrus.Fields{
		"media":       media.Control,
		"session":     cm.sessionID,
		"interleaved": cm.interleaved,
		"multicast":   cm.multicast,
	}).Debug("media set up")

	return res, nil
}

// Setup sends a SETUP request for a media of a session.
func (c *Client) Setup(sess *description.Session, media *description.Media, opts SetupOptions) (*base.Response, error) {
	res, err := c.doSetup(sess, media, opts)
	return res, c.result(err)
}

func (c *Client) sessionTarget(sess *description.Session) (*base.URL, string, []*clientMedia, error) {
	if c.session == "" {
		return nil, "", nil, liberrors.ErrClientNoSession{}
	}

	u, err := c.sessionURL(sess)
	if err != nil {
		return nil, "", nil, err
	}

	return u, c.session, c.medias, nil
}

func (c *Client) mediaTarget(media *description.Media) (*base.URL, string, []*clientMedia, error) {
	cm := c.findMedia(media)
	if cm == nil {
		return nil, "", nil, liberrors.ErrClientMediaNotSetup{}
	}

	sessionID := cm.sessionID
	if sessionID == "" {
		sessionID = c.session
	}
	if sessionID == "" {
		return nil, "", nil, liberrors.ErrClientNoSession{}
	}

	return cm.url, sessionID, []*clientMedia{cm}, nil
}

func (c *Client) doPlay(u *base.URL, sessionID string, targets []*clientMedia, pr PlayRange) (*base.Response, error) {
	header := base.Header{
		"Session": base.HeaderValue{sessionID},
	}

	if pr.Scale != 0 && pr.Scale != 1 {
		header["Scale"] = headers.Scale(pr.Scale).Marshal()
	}

	if pr.Start >= 0 {
		header["Range"] = headers.Range{
			Start: pr.Start,
			End:   pr.End,
		}.Marshal()
	}

	res, err := c.doAuthenticated(&base.Request{
		Method: base.Play,
		URL:    u,
		Header: header,
	})
	if err != nil {
		return res, err
	}

	if res.StatusCode != base.StatusOK {
		return res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	scale := pr.Scale
	if scale == 0 {
		scale = 1
	}
	if v, ok := res.Header["Scale"]; ok {
		var sh headers.Scale
		if sh.Unmarshal(v) == nil {
			scale = float64(sh)
		}
	}

	start := pr.Start
	if start < 0 {
		start = 0
	}
	if v, ok := res.Header["Range"]; ok {
		var ra headers.Range
		if ra.Unmarshal(v) == nil && !ra.Now {
			start = ra.Start
		}
	}

	var rtpInfo headers.RTPInfo
	if v, ok := res.Header["RTP-Info"]; ok {
		err = rtpInfo.Unmarshal(v)
		if err != nil {
			c.log.WithError(err).Warn("invalid RTP-Info header")
			rtpInfo = nil
		}
	}

	// RTP-Info entries are listed in setup order
	for i, cm := range targets {
		ps := &description.PlayState{
			Start: start,
			Scale: scale,
		}
		if i < len(rtpInfo) {
			ps.SequenceNumber = rtpInfo[i].SequenceNumber
			ps.Timestamp = rtpInfo[i].Timestamp
		}
		cm.media.Play = ps
	}

	c.incomingStart()
	c.keepaliveStart(u)

	return res, nil
}

// Play sends a PLAY request for the whole session.
// If sess is nil, the base URL of the last DESCRIBE or ANNOUNCE is used.
func (c *Client) Play(sess *description.Session, pr PlayRange) (*base.Response, error) {
	u, sessionID, targets, err := c.sessionTarget(sess)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doPlay(u, sessionID, targets, pr)
	return res, c.result(err)
}

// PlayMedia sends a PLAY request for a single media.
func (c *Client) PlayMedia(media *description.Media, pr PlayRange) (*base.Response, error) {
	u, sessionID, targets, err := c.mediaTarget(media)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doPlay(u, sessionID, targets, pr)
	return res, c.result(err)
}

func (c *Client) doSimple(
	method base.Method,
	u *base.URL,
	sessionID string,
	header base.Header,
	body []byte,
) (*base.Response, error) {
	if header == nil {
		header = make(base.Header)
	}
	header["Session"] = base.HeaderValue{sessionID}

	res, err := c.doAuthenticated(&base.Request{
		Method: method,
		URL:    u,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return res, err
	}

	if res.StatusCode != base.StatusOK {
		return res, liberrors.ErrClientBadStatusCode{Code: res.StatusCode, Message: res.StatusMessage}
	}

	return res, nil
}

// Pause sends a PAUSE request for the whole session.
func (c *Client) Pause(sess *description.Session) (*base.Response, error) {
	u, sessionID, _, err := c.sessionTarget(sess)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doSimple(base.Pause, u, sessionID, nil, nil)
	return res, c.result(err)
}

// PauseMedia sends a PAUSE request for a single media.
func (c *Client) PauseMedia(media *description.Media) (*base.Response, error) {
	u, sessionID, _, err := c.mediaTarget(media)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doSimple(base.Pause, u, sessionID, nil, nil)
	return res, c.result(err)
}

func (c *Client) doRecord(u *base.URL, sessionID string) (*base.Response, error) {
	res, err := c.doSimple(base.Record, u, sessionID, base.Header{
		"Range": base.HeaderValue{"npt=0-"},
	}, nil)
	if err != nil {
		return res, err
	}

	c.incomingStart()
	c.keepaliveStart(u)

	return res, nil
}

// Record sends a RECORD request for the whole session.
func (c *Client) Record(sess *description.Session) (*base.Response, error) {
	u, sessionID, _, err := c.sessionTarget(sess)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doRecord(u, sessionID)
	return res, c.result(err)
}

// RecordMedia sends a RECORD request for a single media.
func (c *Client) RecordMedia(media *description.Media) (*base.Response, error) {
	u, sessionID, _, err := c.mediaTarget(media)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doRecord(u, sessionID)
	return res, c.result(err)
}

// SetParameter sends a SET_PARAMETER request.
func (c *Client) SetParameter(sess *description.Session, name string, value string) (*base.Response, error) {
	u, sessionID, _, err := c.sessionTarget(sess)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doSimple(base.SetParameter, u, sessionID, base.Header{
		"Content-Type": base.HeaderValue{"text/parameters"},
	}, []byte(name+": "+value+"\r\n"))
	return res, c.result(err)
}

func parseParameters(body []byte) map[string]string {
	ret := make(map[string]string)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		ret[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return ret
}

func (c *Client) doGetParameter(sess *description.Session, name string) (string, *base.Response, error) {
	u, sessionID, _, err := c.sessionTarget(sess)
	if err != nil {
		return "", nil, err
	}

	header := base.Header{}
	var body []byte

	if name != "" {
		header["Content-Type"] = base.HeaderValue{"text/parameters"}
		body = []byte(name + "\r\n")
	}

	res, err := c.doSimple(base.GetParameter, u, sessionID, header, body)
	if err != nil {
		return "", res, err
	}

	if name == "" {
		return string(res.Body), res, nil
	}

	val, ok := parseParameters(res.Body)[name]
	if !ok {
		return "", res, liberrors.ErrClientParameterNotFound{Name: name}
	}

	return val, res, nil
}

// GetParameter sends a GET_PARAMETER request and returns the value of
// the parameter. If name is empty, the request has no body and the whole
// response body is returned; this can be used as keepalive.
func (c *Client) GetParameter(sess *description.Session, name string) (string, *base.Response, error) {
	val, res, err := c.doGetParameter(sess, name)
	return val, res, c.result(err)
}

func (c *Client) doTeardown(u *base.URL, sessionID string, targets []*clientMedia) (*base.Response, error) {
	res, err := c.doSimple(base.Teardown, u, sessionID, nil, nil)

	// the session is considered closed even if the request fails
	for _, cm := range targets {
		cm.media.Play = nil
		c.removeMedia(cm)
	}

	if len(c.medias) == 0 {
		c.keepaliveStop()
		c.incomingStop()
		c.session = ""
		c.sessionTimeout = nil
		c.tcpChannelCount = 0
	}

	return res, err
}

// Teardown sends a TEARDOWN request for the whole session and clears the session.
func (c *Client) Teardown(sess *description.Session) (*base.Response, error) {
	u, sessionID, _, err := c.sessionTarget(sess)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doTeardown(u, sessionID, append([]*clientMedia(nil), c.medias...))
	return res, c.result(err)
}

// TeardownMedia sends a TEARDOWN request for a single media.
// The session is cleared when no other media is set up.
func (c *Client) TeardownMedia(media *description.Media) (*base.Response, error) {
	u, sessionID, targets, err := c.mediaTarget(media)
	if err != nil {
		return nil, c.result(err)
	}

	res, err := c.doTeardown(u, sessionID, targets)
	return res, c.result(err)
}
