package liberrors

import (
	"fmt"
)

// ErrSIPNoResponse is returned when an INVITE transaction times out.
type ErrSIPNoResponse struct{}

// Error implements the error interface.
func (e ErrSIPNoResponse) Error() string {
	return "No response from server"
}

// ErrSIPBadStatusCode is returned when an INVITE receives a final failure response.
type ErrSIPBadStatusCode struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e ErrSIPBadStatusCode) Error() string {
	return fmt.Sprintf("bad status code: %d (%s)", e.Code, e.Reason)
}

// ErrSIPInvalidURI is returned when a SIP URI can't be parsed.
type ErrSIPInvalidURI struct {
	URI string
}

// Error implements the error interface.
func (e ErrSIPInvalidURI) Error() string {
	return fmt.Sprintf("invalid SIP URI '%s'", e.URI)
}

// ErrSIPNoCall is returned when a request requires an established call.
type ErrSIPNoCall struct{}

// Error implements the error interface.
func (e ErrSIPNoCall) Error() string {
	return "no call is currently in progress"
}

// ErrSIPTransactionInProgress is returned when an INVITE is issued while
// another one is running.
type ErrSIPTransactionInProgress struct{}

// Error implements the error interface.
func (e ErrSIPTransactionInProgress) Error() string {
	return "an INVITE transaction is already in progress"
}
