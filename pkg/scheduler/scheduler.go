// Package scheduler contains a single-threaded cooperative scheduler that
// multiplexes socket readiness and timed tasks.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediactl/pkg/delayqueue"
)

const (
	defaultMaxPollInterval = 100 * time.Millisecond
)

// HandlerFunc is called when a handle becomes ready.
type HandlerFunc func(h Handle, ready Mask)

type handlerEntry struct {
	mask Mask
	fn   HandlerFunc
}

// Scheduler is a single-threaded cooperative scheduler.
// Each step waits for socket readiness with a timeout equal to the time
// before the next timer fires, then fires due timers and dispatches ready
// sockets. Callbacks run to completion and may register, unregister or
// move socket handlers and schedule or cancel timers.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	//
	// parameters (all optional)
	//

	// maximum time spent waiting inside a single step.
	// It defaults to 100ms.
	MaxPollInterval time.Duration
	// clock used by timers.
	// It defaults to the system clock.
	Clock delayqueue.Clock
	// readiness multiplexer.
	// It defaults to a poll(2) based implementation.
	Poller Poller
	// logger.
	// It defaults to the standard logrus logger.
	Log *logrus.Entry

	//
	// callbacks (all optional)
	//

	// called when the Poller fails with a non-transient error.
	OnError func(error)

	queue    *delayqueue.Queue
	handlers map[Handle]*handlerEntry
	steps    uint64
}

// New allocates a Scheduler with default parameters.
func New() *Scheduler {
	s := &Scheduler{}
	s.Initialize()
	return s
}

// Initialize initializes a Scheduler. It must be called before using
// a Scheduler that was not allocated with New(). Calling it again has no effect.
func (s *Scheduler) Initialize() {
	if s.queue != nil {
		return
	}

	if s.MaxPollInterval <= 0 {
		s.MaxPollInterval = defaultMaxPollInterval
	}
	if s.Clock == nil {
		s.Clock = delayqueue.SystemClock
	}
	if s.Poller == nil {
		s.Poller = newDefaultPoller()
	}
	if s.Log == nil {
		s.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	s.queue = delayqueue.New(s.Clock)
	s.handlers = make(map[Handle]*handlerEntry)
}

// SetHandler registers fn to be called when h satisfies one of the
// conditions in mask. It replaces any previous registration of h.
// A zero mask or a nil fn unregisters h.
func (s *Scheduler) SetHandler(h Handle, mask Mask, fn HandlerFunc) {
	if mask == 0 || fn == nil {
		delete(s.handlers, h)
		return
	}

	s.handlers[h] = &handlerEntry{
		mask: mask,
		fn:   fn,
	}
}

// DisableHandler unregisters h.
func (s *Scheduler) DisableHandler(h Handle) {
	delete(s.handlers, h)
}

// MoveHandler moves the registration of oldH to newH.
// It is used when a socket is replaced by a new one, for instance after a
// reconnection.
func (s *Scheduler) MoveHandler(oldH Handle, newH Handle) {
	e, ok := s.handlers[oldH]
	if !ok {
		return
	}

	delete(s.handlers, oldH)
	s.handlers[newH] = e
}

// HandlerCount returns the number of registered handles.
func (s *Scheduler) HandlerCount() int {
	return len(s.handlers)
}

// ScheduleDelayedTask schedules fn to run after delay.
func (s *Scheduler) ScheduleDelayedTask(delay time.Duration, fn func()) delayqueue.Token {
	return s.queue.Schedule(delay, fn)
}

// UnscheduleDelayedTask cancels a task. It is a no-op when the task
// already ran or was already canceled.
func (s *Scheduler) UnscheduleDelayedTask(tok delayqueue.Token) {
	s.queue.Cancel(tok)
}

// RescheduleDelayedTask moves a pending task to run after delay.
func (s *Scheduler) RescheduleDelayedTask(tok delayqueue.Token, delay time.Duration) (delayqueue.Token, bool) {
	return s.queue.Reschedule(tok, delay)
}

// TaskRemaining returns the delay left before a pending task runs.
func (s *Scheduler) TaskRemaining(tok delayqueue.Token) (time.Duration, bool) {
	return s.queue.Remaining(tok)
}

// PendingTasks returns the number of pending tasks.
func (s *Scheduler) PendingTasks() int {
	return s.queue.Len()
}

// Steps returns the number of steps started so far, including the
// current one when called from a callback.
// Readiness reported to a socket handler was sampled at the beginning of
// the current step, before due timers ran.
func (s *Scheduler) Steps() uint64 {
	return s.steps
}

// SingleStep performs a single step of the event loop.
// maxDelay, when positive, further limits the wait.
func (s *Scheduler) SingleStep(maxDelay time.Duration) {
	s.steps++

	timeout := s.MaxPollInterval
	if maxDelay > 0 && maxDelay < timeout {
		timeout = maxDelay
	}
	if d, ok := s.queue.TimeToNextFire(); ok && d < timeout {
		timeout = d
	}

	interest := make(map[Handle]Mask, len(s.handlers))
	for h, e := range s.handlers {
		interest[h] = e.mask
	}

	ready, err := s.Poller.Poll(interest, timeout)
	if err != nil {
		var terr ErrTransient
		if !errors.As(err, &terr) {
			s.Log.WithError(err).Warn("poll failed")
			if s.OnError != nil {
				s.OnError(err)
			}
		}
		ready = nil
	}

	// fire timers that are due now. Timers scheduled by these
	// actions run in the next step.
	n := s.queue.Len()
	for i := 0; i < n && s.queue.FireDue(); i++ {
	}

	if len(ready) == 0 {
		return
	}

	handles := make([]Handle, 0, len(ready))
	for h := range ready {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	for _, h := range handles {
		// registrations can be changed by previous callbacks
		e, ok := s.handlers[h]
		if !ok {
			continue
		}

		m := ready[h] & (e.mask | MaskException)
		if m == 0 {
			continue
		}

		e.fn(h, m)
	}
}

// DoEventLoop runs the event loop until the future is resolved or the
// context is canceled. When f is nil, it runs until the context is canceled.
// It returns the outcome of the future or the context error.
func (s *Scheduler) DoEventLoop(ctx context.Context, f *Future) error {
	for {
		if f != nil && f.Done() {
			return f.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.SingleStep(0)
	}
}
