package sip

import (
	"time"

	sipparser "github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/mediactl/pkg/delayqueue"
	"github.com/bluenviron/mediactl/pkg/liberrors"
	"github.com/bluenviron/mediactl/pkg/scheduler"
)

// TransactionState is the state of an INVITE client transaction.
type TransactionState int

// states.
const (
	StateCalling TransactionState = iota
	StateProceeding
	StateCompleted
	StateTerminated
)

// String implements fmt.Stringer.
func (s TransactionState) String() string {
	switch s {
	case StateCalling:
		return "calling"
	case StateProceeding:
		return "proceeding"
	case StateCompleted:
		return "completed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// inviteTransaction is an INVITE client transaction (RFC 3261, 17.1.1).
// 4xx responses terminate the transaction immediately, since they are
// handled by the caller (for instance with an authenticated retry).
type inviteTransaction struct {
	sched  *scheduler.Scheduler
	log    *logrus.Entry
	t1     time.Duration
	timerD time.Duration

	// sends the INVITE request.
	sendRequest func() error
	// sends the ACK of a non-2xx final response.
	sendAck func(res *sipparser.Response) error
	// called once, when the transaction reaches the Terminated state.
	onTerminated func(final *sipparser.Response, err error)

	state         TransactionState
	timerAPeriod  time.Duration
	timerAToken   delayqueue.Token
	timerBToken   delayqueue.Token
	timerDToken   delayqueue.Token
	finalResponse *sipparser.Response
}

func (t *inviteTransaction) start() error {
	t.state = StateCalling

	err := t.sendRequest()
	if err != nil {
		t.terminate(nil, err)
		return err
	}

	t.timerAPeriod = t.t1
	t.timerAToken = t.sched.ScheduleDelayedTask(t.timerAPeriod, t.onTimerA)
	t.timerBToken = t.sched.ScheduleDelayedTask(64*t.t1, t.onTimerB)

	return nil
}

func (t *inviteTransaction) setState(s TransactionState) {
	if s == t.state {
		return
	}

	t.log.WithFields(logrus.Fields{
		"from": t.state,
		"to":   s,
	}).Debug("transaction state changed")

	// timers A and B run only while Calling
	if t.state == StateCalling {
		t.sched.UnscheduleDelayedTask(t.timerAToken)
		t.sched.UnscheduleDelayedTask(t.timerBToken)
		t.timerAToken = 0
		t.timerBToken = 0
	}

	t.state = s
}

func (t *inviteTransaction) terminate(final *sipparser.Response, err error) {
	if t.state == StateTerminated {
		return
	}

	t.setState(StateTerminated)

	t.sched.UnscheduleDelayedTask(t.timerDToken)
	t.timerDToken = 0

	t.onTerminated(final, err)
}

func (t *inviteTransaction) onTimerA() {
	t.timerAToken = 0

	if t.state != StateCalling {
		return
	}

	t.timerAPeriod *= 2
	t.timerAToken = t.sched.ScheduleDelayedTask(t.timerAPeriod, t.onTimerA)

	t.log.WithField("next", t.timerAPeriod).Debug("retransmitting INVITE")

	err := t.sendRequest()
	if err != nil {
		t.log.WithError(err).Warn("unable to retransmit INVITE")
	}
}

func (t *inviteTransaction) onTimerB() {
	t.timerBToken = 0

	if t.state != StateCalling {
		return
	}

	t.terminate(nil, liberrors.ErrSIPNoResponse{})
}

func (t *inviteTransaction) onTimerD() {
	t.timerDToken = 0
	t.terminate(t.finalResponse, nil)
}

func (t *inviteTransaction) handleResponse(res *sipparser.Response) {
	switch {
	case t.state == StateTerminated:
		return

	case t.state == StateCompleted:
		// retransmission of the final response
		if res.StatusCode >= 300 {
			err := t.sendAck(res)
			if err != nil {
				t.log.WithError(err).Warn("unable to send ACK")
			}
		}

	case res.StatusCode < 200:
		t.setState(StateProceeding)

	case res.StatusCode < 300:
		// the ACK of a 2xx response is sent by the transaction user
		t.terminate(res, nil)

	case res.StatusCode < 500 && res.StatusCode >= 400:
		t.terminate(res, nil)

	default:
		t.setState(StateCompleted)
		t.finalResponse = res

		err := t.sendAck(res)
		if err != nil {
			t.log.WithError(err).Warn("unable to send ACK")
		}

		t.timerDToken = t.sched.ScheduleDelayedTask(t.timerD, t.onTimerD)
	}
}
