package sip

import (
	"net"
	"strconv"
	"strings"

	sipparser "github.com/emiago/sipgo/sip"

	"github.com/bluenviron/mediactl/pkg/liberrors"
)

const (
	defaultPort = 5060
)

// ParseURI parses a SIP URI in the form sip:[user@]host[:port][;params].
func ParseURI(s string) (*sipparser.Uri, error) {
	if !strings.HasPrefix(s, "sip:") {
		return nil, liberrors.ErrSIPInvalidURI{URI: s}
	}

	var u sipparser.Uri
	err := sipparser.ParseUri(s, &u)
	if err != nil || u.Host == "" {
		return nil, liberrors.ErrSIPInvalidURI{URI: s}
	}

	return &u, nil
}

// uriHostPort returns the address of the URI, with the default port
// when the URI doesn't specify one.
func uriHostPort(u *sipparser.Uri) string {
	port := u.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(strings.Trim(u.Host, "[]"), strconv.FormatInt(int64(port), 10))
}
