package scheduler

import (
	"fmt"
	"syscall"
	"time"
)

// Handle is a socket descriptor.
type Handle int

// Mask is a set of readiness conditions.
type Mask uint8

// readiness conditions.
const (
	MaskReadable Mask = 1 << iota
	MaskWritable
	MaskException
)

// Poller waits until at least one handle becomes ready or the timeout expires.
// A negative timeout means no timeout.
type Poller interface {
	Poll(interest map[Handle]Mask, timeout time.Duration) (map[Handle]Mask, error)
}

// ErrTransient is returned by a Poller when the wait was interrupted
// and can be retried.
type ErrTransient struct {
	Err error
}

// Error implements the error interface.
func (e ErrTransient) Error() string {
	return fmt.Sprintf("transient poll error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e ErrTransient) Unwrap() error {
	return e.Err
}

type handleProvider interface {
	SchedulerHandle() Handle
}

// HandleOf returns the Handle of a connection.
// It supports values that implement syscall.Conn and values that expose
// a SchedulerHandle() method.
func HandleOf(v interface{}) (Handle, error) {
	if hp, ok := v.(handleProvider); ok {
		return hp.SchedulerHandle(), nil
	}

	sc, ok := v.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("%T doesn't expose a socket descriptor", v)
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var h Handle
	err = rc.Control(func(fd uintptr) {
		h = Handle(fd)
	})
	if err != nil {
		return 0, err
	}

	return h, nil
}
