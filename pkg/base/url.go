package base

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the port used when a rtsp URL doesn't specify one.
	DefaultPort = 554

	// DefaultSecurePort is the port used when a rtsps URL doesn't specify one.
	DefaultSecurePort = 322
)

// URL is a RTSP URL.
// This is basically an HTTP URL with some additional functions to handle
// control attributes.
type URL url.URL

// ParseURL parses a RTSP URL.
func ParseURL(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("URL has no host")
	}

	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil || port < 1 {
			return nil, fmt.Errorf("bad port number '%s'", p)
		}
	}

	return (*URL)(u), nil
}

// MustParseURL is like ParseURL but panics in case of errors.
func MustParseURL(s string) *URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// IsAbsoluteURL checks whether a control attribute is an absolute URL
// (i.e. it starts with a scheme followed by "://").
func IsAbsoluteURL(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}

	for _, c := range s[:i] {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') &&
			!(c >= '0' && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}

	return true
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return (*url.URL)(u).String()
}

// Clone clones a URL.
func (u *URL) Clone() *URL {
	return (*URL)(&url.URL{
		Scheme:     u.Scheme,
		Opaque:     u.Opaque,
		User:       u.User,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   u.RawQuery,
	})
}

// CloneWithoutCredentials clones a URL without its credentials.
func (u *URL) CloneWithoutCredentials() *URL {
	return (*URL)(&url.URL{
		Scheme:     u.Scheme,
		Opaque:     u.Opaque,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		ForceQuery: u.ForceQuery,
		RawQuery:   u.RawQuery,
	})
}

// Credentials returns the username and password embedded in the URL.
func (u *URL) Credentials() (string, string, bool) {
	if u.User == nil {
		return "", "", false
	}
	pass, _ := u.User.Password()
	return u.User.Username(), pass, true
}

// HostPort returns the host of the URL, including the default port if
// the URL doesn't specify one.
func (u *URL) HostPort() string {
	if u.Port() != "" {
		return u.Host
	}

	port := DefaultPort
	if u.Scheme == "rtsps" {
		port = DefaultSecurePort
	}
	return net.JoinHostPort(u.Hostname(), strconv.FormatInt(int64(port), 10))
}

// Hostname returns the host without the port.
func (u *URL) Hostname() string {
	return (*url.URL)(u).Hostname()
}

// Port returns the port, or an empty string when missing.
func (u *URL) Port() string {
	return (*url.URL)(u).Port()
}

// ResolveControl builds the URL of a control attribute.
// An absolute control attribute is used as-is. A relative one is
// appended to the URL, adding a separator only when needed.
func (u *URL) ResolveControl(control string) (*URL, error) {
	if IsAbsoluteURL(control) {
		return ParseURL(control)
	}

	prefix := u.CloneWithoutCredentials().String()
	if control == "" || control == "*" {
		nu, err := ParseURL(prefix)
		if err != nil {
			return nil, err
		}
		nu.User = u.User
		return nu, nil
	}

	if strings.HasSuffix(prefix, "/") && strings.HasPrefix(control, "/") {
		control = control[1:]
	}

	sep := "/"
	if strings.HasSuffix(prefix, "/") || strings.HasPrefix(control, "/") || strings.HasPrefix(control, "?") {
		sep = ""
	}

	nu, err := ParseURL(prefix + sep + control)
	if err != nil {
		return nil, err
	}
	nu.User = u.User
	return nu, nil
}
