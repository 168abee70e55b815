// Package delayqueue contains a queue of timed actions.
package delayqueue

import (
	"container/heap"
	"time"
)

// Token identifies a scheduled action. Tokens are never reused.
// The zero Token never identifies an action.
type Token uint64

type entry struct {
	token  Token
	fireAt time.Duration
	seq    uint64
	action func()
	index  int
}

type entryHeap []*entry

func (h entryHeap) Len() int {
	return len(h)
}

func (h entryHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a queue of actions ordered by fire time.
// Actions scheduled for the same time fire in insertion order.
//
// The queue measures time by accumulating the forward movements of its
// Clock. When the clock moves backward, no time is considered elapsed.
//
// Queue is not safe for concurrent use; it is meant to be driven by a
// single scheduler loop.
type Queue struct {
	clock Clock

	entries   entryHeap
	byToken   map[Token]*entry
	nextToken Token
	nextSeq   uint64

	// time elapsed since the queue was created
	now        time.Duration
	lastSample time.Time
}

// New allocates a Queue. If clock is nil, SystemClock is used.
func New(clock Clock) *Queue {
	if clock == nil {
		clock = SystemClock
	}

	return &Queue{
		clock:      clock,
		byToken:    make(map[Token]*entry),
		lastSample: clock.Now(),
	}
}

// Clock returns the Clock used by the queue.
func (q *Queue) Clock() Clock {
	return q.clock
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Synchronize samples the clock and accounts the time elapsed since the
// previous sample. A clock that went backward is clamped.
func (q *Queue) Synchronize() {
	sample := q.clock.Now()

	elapsed := sample.Sub(q.lastSample)
	if elapsed > 0 {
		q.now += elapsed
	}

	q.lastSample = sample
}

// Schedule schedules an action to fire after delay.
// A non-positive delay makes the action fire at the next scheduling point.
func (q *Queue) Schedule(delay time.Duration, action func()) Token {
	q.Synchronize()

	if delay < 0 {
		delay = 0
	}

	q.nextToken++
	q.nextSeq++

	e := &entry{
		token:  q.nextToken,
		fireAt: q.now + delay,
		seq:    q.nextSeq,
		action: action,
	}

	heap.Push(&q.entries, e)
	q.byToken[e.token] = e

	return e.token
}

// Cancel removes a pending action.
// Canceling an action that already fired or was already canceled is a no-op.
func (q *Queue) Cancel(token Token) {
	e, ok := q.byToken[token]
	if !ok {
		return
	}

	heap.Remove(&q.entries, e.index)
	delete(q.byToken, token)
}

// Reschedule moves a pending action to fire after newDelay.
// It returns the token of the moved action and false when the token
// doesn't identify a pending action.
func (q *Queue) Reschedule(token Token, newDelay time.Duration) (Token, bool) {
	e, ok := q.byToken[token]
	if !ok {
		return 0, false
	}

	q.Cancel(token)
	return q.Schedule(newDelay, e.action), true
}

// Remaining returns the delay left before a pending action fires.
func (q *Queue) Remaining(token Token) (time.Duration, bool) {
	e, ok := q.byToken[token]
	if !ok {
		return 0, false
	}

	q.Synchronize()

	if e.fireAt <= q.now {
		return 0, true
	}
	return e.fireAt - q.now, true
}

// TimeToNextFire returns the delay before the earliest action fires.
// It returns false when the queue is empty.
func (q *Queue) TimeToNextFire() (time.Duration, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}

	head := q.entries[0]
	if head.fireAt <= q.now {
		return 0, true
	}

	q.Synchronize()

	if head.fireAt <= q.now {
		return 0, true
	}
	return head.fireAt - q.now, true
}

// FireDue fires the earliest action if it is due.
// The action is removed from the queue before it is invoked, therefore it
// can schedule or cancel other actions, including rescheduling itself.
// It returns whether an action fired.
func (q *Queue) FireDue() bool {
	if len(q.entries) == 0 {
		return false
	}

	q.Synchronize()

	head := q.entries[0]
	if head.fireAt > q.now {
		return false
	}

	heap.Pop(&q.entries)
	delete(q.byToken, head.token)

	head.action()
	return true
}
