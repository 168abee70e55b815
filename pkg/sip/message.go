// Package sip contains a SIP user agent client that places calls with the
// INVITE client transaction of RFC 3261.
package sip

import (
	sipparser "github.com/emiago/sipgo/sip"

	"github.com/bluenviron/mediactl/pkg/base"
)

// methods.
const (
	MethodInvite = sipparser.INVITE
	MethodAck    = sipparser.ACK
	MethodBye    = sipparser.BYE
)

// headerValues returns the values of headers with the same name.
func headerValues(hs []sipparser.Header) base.HeaderValue {
	if len(hs) == 0 {
		return nil
	}

	ret := make(base.HeaderValue, len(hs))
	for i, h := range hs {
		ret[i] = h.Value()
	}
	return ret
}

// toTag returns the tag of the To header of a response.
func toTag(res *sipparser.Response) string {
	to := res.To()
	if to == nil || to.Params == nil {
		return ""
	}

	v, _ := to.Params.Get("tag")
	return v
}

// parseMessage decodes a datagram.
// The message doesn't reference buf.
func parseMessage(p *sipparser.Parser, buf []byte) (sipparser.Message, error) {
	return p.ParseSIP(append([]byte(nil), buf...))
}
