//go:build linux || darwin || freebsd

package scheduler

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

type unixPoller struct {
	fds []unix.PollFd
}

func newDefaultPoller() Poller {
	return &unixPoller{}
}

func timeoutToMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}

	// round up, in order not to wake up before timers are due
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}

func (p *unixPoller) Poll(interest map[Handle]Mask, timeout time.Duration) (map[Handle]Mask, error) {
	p.fds = p.fds[:0]

	for h, m := range interest {
		var events int16
		if m&MaskReadable != 0 {
			events |= unix.POLLIN
		}
		if m&MaskWritable != 0 {
			events |= unix.POLLOUT
		}
		if m&MaskException != 0 {
			events |= unix.POLLPRI
		}

		p.fds = append(p.fds, unix.PollFd{Fd: int32(h), Events: events})
	}

	n, err := unix.Poll(p.fds, timeoutToMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return nil, ErrTransient{Err: err}
		}
		return nil, err
	}

	if n == 0 {
		return nil, nil
	}

	ready := make(map[Handle]Mask, n)

	for _, fd := range p.fds {
		if fd.Revents == 0 {
			continue
		}

		var m Mask

		// a hang-up is reported as readable, in order to let the
		// handler read the end of stream.
		if fd.Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			m |= MaskReadable
		}
		if fd.Revents&unix.POLLOUT != 0 {
			m |= MaskWritable
		}
		if fd.Revents&(unix.POLLPRI|unix.POLLERR|unix.POLLNVAL) != 0 {
			m |= MaskException
		}

		ready[Handle(fd.Fd)] = m
	}

	return ready, nil
}
