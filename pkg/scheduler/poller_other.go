//go:build !(linux || darwin || freebsd)

package scheduler

import (
	"fmt"
	"time"
)

// sleepPoller only supports timers.
type sleepPoller struct{}

func newDefaultPoller() Poller {
	return sleepPoller{}
}

func (sleepPoller) Poll(interest map[Handle]Mask, timeout time.Duration) (map[Handle]Mask, error) {
	if len(interest) != 0 {
		return nil, fmt.Errorf("socket polling is not supported on this platform")
	}

	if timeout > 0 {
		time.Sleep(timeout)
	}

	return nil, nil
}
