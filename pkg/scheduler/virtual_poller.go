package scheduler

import (
	"sync"
	"time"

	"github.com/bluenviron/mediactl/pkg/delayqueue"
)

// VirtualPoller is a Poller that never blocks.
// When no handle is ready, it advances a ManualClock by the poll timeout,
// therefore timer scenarios run in virtual time.
// Readiness is injected with SetReady.
type VirtualPoller struct {
	Clock *delayqueue.ManualClock

	mutex    sync.Mutex
	ready    map[Handle]Mask
	errs     []error
	timeouts []time.Duration
}

// SetReady marks a handle as ready. The condition is consumed by the
// next Poll that is interested in it.
func (p *VirtualPoller) SetReady(h Handle, m Mask) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.ready == nil {
		p.ready = make(map[Handle]Mask)
	}
	p.ready[h] |= m
}

// InjectError makes the next Poll return err.
func (p *VirtualPoller) InjectError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.errs = append(p.errs, err)
}

// Timeouts returns the timeouts passed to Poll.
func (p *VirtualPoller) Timeouts() []time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]time.Duration(nil), p.timeouts...)
}

// Poll implements Poller.
func (p *VirtualPoller) Poll(interest map[Handle]Mask, timeout time.Duration) (map[Handle]Mask, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.timeouts = append(p.timeouts, timeout)

	if len(p.errs) != 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}

	var out map[Handle]Mask

	for h, want := range interest {
		got := p.ready[h] & want
		if got == 0 {
			continue
		}

		if out == nil {
			out = make(map[Handle]Mask)
		}
		out[h] = got

		p.ready[h] &^= got
		if p.ready[h] == 0 {
			delete(p.ready, h)
		}
	}

	if out != nil {
		return out, nil
	}

	if timeout > 0 && p.Clock != nil {
		p.Clock.Advance(timeout)
	}

	return nil, nil
}
