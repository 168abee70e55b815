// Package liberrors contains errors returned by the library.
package liberrors

import (
	"fmt"

	"github.com/bluenviron/mediactl/pkg/base"
)

// ErrClientTerminated is returned when the client is used after Close().
type ErrClientTerminated struct{}

// Error implements the error interface.
func (e ErrClientTerminated) Error() string {
	return "terminated"
}

// ErrClientConnect is returned when a connection to the server can't be established.
type ErrClientConnect struct {
	Address string
	Err     error
}

// Error implements the error interface.
func (e ErrClientConnect) Error() string {
	return fmt.Sprintf("connect() to %s failed: %v", e.Address, e.Err)
}

// Unwrap returns the underlying error.
func (e ErrClientConnect) Unwrap() error {
	return e.Err
}

// ErrClientSendFailed is returned when a request can't be sent.
type ErrClientSendFailed struct {
	Method base.Method
	Err    error
}

// Error implements the error interface.
func (e ErrClientSendFailed) Error() string {
	return fmt.Sprintf("%s send() failed: %v", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e ErrClientSendFailed) Unwrap() error {
	return e.Err
}

// ErrClientBadStatusCode is returned in case of a wrong status code.
type ErrClientBadStatusCode struct {
	Code    base.StatusCode
	Message string
}

// Error implements the error interface.
func (e ErrClientBadStatusCode) Error() string {
	return fmt.Sprintf("bad status code: %d (%s)", e.Code, e.Message)
}

// ErrClientNoSession is returned when a command that requires a session
// is issued before a session has been established.
type ErrClientNoSession struct{}

// Error implements the error interface.
func (e ErrClientNoSession) Error() string {
	return "No RTSP session is currently in progress"
}

// ErrClientSessionHeaderMissing is returned when a SETUP response doesn't contain a Session header.
type ErrClientSessionHeaderMissing struct{}

// Error implements the error interface.
func (e ErrClientSessionHeaderMissing) Error() string {
	return "\"Session:\" header is missing in the response"
}

// ErrClientSessionHeaderInvalid is returned in case of an invalid session header.
type ErrClientSessionHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientSessionHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid session header: %v", e.Err)
}

// ErrClientTransportHeaderInvalid is returned in case the transport header is invalid.
type ErrClientTransportHeaderInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientTransportHeaderInvalid) Error() string {
	return fmt.Sprintf("invalid transport header: %v", e.Err)
}

// ErrClientClientPortUnknown is returned when SETUP over UDP is requested without a client port.
type ErrClientClientPortUnknown struct{}

// Error implements the error interface.
func (e ErrClientClientPortUnknown) Error() string {
	return "Client port number unknown"
}

// ErrClientResponseTruncated is returned when the connection ends while
// a response is being read.
type ErrClientResponseTruncated struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientResponseTruncated) Error() string {
	return fmt.Sprintf("RTSP response was truncated: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrClientResponseTruncated) Unwrap() error {
	return e.Err
}

// ErrClientAuthFailed is returned when the server rejects the credentials.
type ErrClientAuthFailed struct {
	Code base.StatusCode
}

// Error implements the error interface.
func (e ErrClientAuthFailed) Error() string {
	return fmt.Sprintf("authentication failed (status code %d)", e.Code)
}

// ErrClientRedirectWithoutLocation is returned when a redirect doesn't
// contain a valid Location header.
type ErrClientRedirectWithoutLocation struct{}

// Error implements the error interface.
func (e ErrClientRedirectWithoutLocation) Error() string {
	return "redirect response without a valid \"Location:\" header"
}

// ErrClientTooManyRedirects is returned when a redirect is received
// after a redirect has already been followed.
type ErrClientTooManyRedirects struct{}

// Error implements the error interface.
func (e ErrClientTooManyRedirects) Error() string {
	return "too many redirects"
}

// ErrClientContentTypeUnsupported is returned in case the Content-Type header is unsupported.
type ErrClientContentTypeUnsupported struct {
	CT base.HeaderValue
}

// Error implements the error interface.
func (e ErrClientContentTypeUnsupported) Error() string {
	return fmt.Sprintf("unsupported Content-Type header '%v'", e.CT)
}

// ErrClientTunnelFailed is returned when the HTTP tunnel can't be set up.
type ErrClientTunnelFailed struct {
	Err error
}

// Error implements the error interface.
func (e ErrClientTunnelFailed) Error() string {
	return fmt.Sprintf("HTTP tunneling setup failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrClientTunnelFailed) Unwrap() error {
	return e.Err
}

// ErrClientMediaNotSetup is returned when a command addresses a media that hasn't been set up.
type ErrClientMediaNotSetup struct{}

// Error implements the error interface.
func (e ErrClientMediaNotSetup) Error() string {
	return "media has not been set up"
}

// ErrClientParameterNotFound is returned when a GET_PARAMETER response
// doesn't contain the requested parameter.
type ErrClientParameterNotFound struct {
	Name string
}

// Error implements the error interface.
func (e ErrClientParameterNotFound) Error() string {
	return fmt.Sprintf("parameter '%s' not found in response", e.Name)
}
