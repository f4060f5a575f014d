package objproxy

import (
	"context"
	"sync"
)

// resultState is Future's internal state machine: pending, value,
// error, or cancelled.
type resultState int

const (
	stateResultPending resultState = iota
	stateResultValue
	stateResultError
	stateResultCancelled
)

// Future is the handle returned by an async-mode invocation.
// HasResult is non-blocking; Result blocks (respecting
// ctx) until a reply arrives, the context is done, or Cancel was called.
type Future struct {
	session *session
	id      RequestID
	ch      chan *Frame
	res     resolver

	mu        sync.Mutex
	state     resultState
	value     interface{}
	err       error
	delivered bool
}

func newFuture(s *session, id RequestID, ch chan *Frame, res resolver) *Future {
	return &Future{session: s, id: id, ch: ch, res: res}
}

// HasResult reports whether a reply has already arrived, without
// blocking.
func (fu *Future) HasResult() bool {
	fu.mu.Lock()
	if fu.delivered {
		fu.mu.Unlock()
		return true
	}
	fu.mu.Unlock()

	select {
	case reply := <-fu.ch:
		fu.deliver(reply)
		return true
	default:
		return fu.stateKnown()
	}
}

func (fu *Future) stateKnown() bool {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.state != stateResultPending
}

// Result blocks until the reply is available, ctx is done, or the
// Future was cancelled, and returns the hydrated value or error.
func (fu *Future) Result(ctx context.Context) (interface{}, error) {
	fu.mu.Lock()
	if fu.delivered {
		v, e := fu.value, fu.err
		fu.mu.Unlock()
		return v, e
	}
	fu.mu.Unlock()

	select {
	case reply := <-fu.ch:
		fu.deliver(reply)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-fu.session.closeCh:
		fu.deliverErr(fu.session.failureError())
	}

	fu.mu.Lock()
	defer fu.mu.Unlock()
	return fu.value, fu.err
}

func (fu *Future) deliver(reply *Frame) {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	if fu.delivered {
		return
	}
	fu.delivered = true
	if !reply.isOK() {
		fu.state = stateResultError
		fu.err = wireErrorFromFrame(reply)
		return
	}
	val, err := hydrate(reply.Payload, fu.res)
	if err != nil {
		fu.state = stateResultError
		fu.err = err
		return
	}
	fu.state = stateResultValue
	fu.value = val
}

func (fu *Future) deliverErr(err error) {
	fu.mu.Lock()
	defer fu.mu.Unlock()
	if fu.delivered {
		return
	}
	fu.delivered = true
	fu.state = stateResultError
	fu.err = err
}

// Cancel sends a best-effort CANCEL notice for this request and marks
// the Future's local result as CANCELLED immediately — it never waits
// for the Server to acknowledge, and a reply that arrives afterward is
// silently discarded.
func (fu *Future) Cancel() {
	fu.mu.Lock()
	if fu.delivered {
		fu.mu.Unlock()
		return
	}
	fu.delivered = true
	fu.state = stateResultCancelled
	fu.err = ErrorCancelled
	fu.mu.Unlock()

	fu.session.unregisterPending(fu.id)
	_ = fu.session.sendNotice(&Frame{Op: OpCancel, ID: fu.id})
}
