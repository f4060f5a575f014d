package objproxy

import (
	"fmt"
	"sync"
	"time"
)

// requestHandler executes one incoming Request frame against whatever
// local object surface this session's owner exposes (a Server's
// ObjectRegistry, or nothing for a pure Client with no paired
// LocalServer). It returns the Frame to send back, or nil if none
// should be sent (mode == off, or the frame was a notice).
type requestHandler func(s *session, f *Frame) *Frame

// session wraps one Transport for the lifetime of a connection between
// two peers and is symmetric: either side may send Request frames over
// it at any time. This is what makes reentrant callbacks possible
// without a second connection — when a Server's opcode execution needs
// to call back a Proxy argument that was handed to it over session s,
// the Proxy is bound directly to s and the nested call travels over the
// very same Transport the original request arrived on.
type session struct {
	Logger

	transport Transport
	codec     *Codec
	ids       idGenerator

	handler requestHandler

	mu      sync.Mutex
	pending map[RequestID]chan *Frame
	closed  bool
	closeCh chan struct{}
	closeErr error

	inbound inboundQueue

	onNotice func(f *Frame)
	onClose  func(s *session)

	releases *releaseBatcher

	cancelMu  sync.Mutex
	cancelled map[RequestID]bool
}

func newSession(transport Transport, codec *Codec, logger Logger, cfg Config, handler requestHandler) *session {
	s := &session{
		Logger:    logger,
		transport: transport,
		codec:     codec,
		handler:   handler,
		pending:   make(map[RequestID]chan *Frame),
		closeCh:   make(chan struct{}),
		cancelled: make(map[RequestID]bool),
	}
	s.inbound.init()
	s.releases = newReleaseBatcher(cfg, func(pairs []ReleasePair) {
		s.sendNotice(&Frame{Notice: NoticeRelease, Payload: pairs})
	})
	go s.readLoop()
	go s.executorLoop()
	return s
}

func (s *session) scheduleRelease(id ObjectID, n int) {
	s.releases.add(id, n)
}

func (s *session) markCancelled(id RequestID) {
	s.cancelMu.Lock()
	s.cancelled[id] = true
	s.cancelMu.Unlock()
}

// takeCancelled reports and clears whether id was cancelled before
// execution started: a Server may honor CANCEL by skipping
// pre-execution work, but never interrupts a running target operation.
func (s *session) takeCancelled(id RequestID) bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelled[id] {
		delete(s.cancelled, id)
		return true
	}
	return false
}

// inboundQueue is an unbounded FIFO of Request frames awaiting dispatch,
// with a one-slot wakeup channel so consumers can block efficiently
// between items. Keeping it separate from reply delivery means a single
// receive path never head-of-line blocks a pending waiter.
type inboundQueue struct {
	mu     sync.Mutex
	items  []*Frame
	notify chan struct{}
}

func (q *inboundQueue) init() {
	q.notify = make(chan struct{}, 1)
}

func (q *inboundQueue) push(f *Frame) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *inboundQueue) pop() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

func (s *session) readLoop() {
	for {
		msg, err := s.transport.Recv()
		if err != nil {
			s.fail(newWireError(ErrConnectionLost, fmt.Sprintf("transport receive failed: %s", err)))
			return
		}
		f, err := s.codec.DecodeFrame(msg)
		if err != nil {
			s.DLogf("session: failed to decode frame, dropping: %s", err)
			continue
		}
		s.route(f)
	}
}

func (s *session) route(f *Frame) {
	switch f.Kind {
	case KindReply:
		s.mu.Lock()
		ch, ok := s.pending[f.ID]
		s.mu.Unlock()
		if ok {
			select {
			case ch <- f:
			default:
			}
		}
	case KindNotice:
		if f.Op == OpCancel {
			s.markCancelled(f.ID)
			return
		}
		if s.onNotice != nil {
			s.onNotice(f)
		}
	case KindRequest:
		s.inbound.push(f)
	}
}

// executorLoop is the single dispatcher for inbound Request frames on
// this session. It is the only goroutine that ever pops from s.inbound,
// whether directly (idle) or recursively via sendRequestReentrant
// (while blocked on a nested outbound call) — so opcode execution for
// this session is always strictly one-at-a-time.
func (s *session) executorLoop() {
	for {
		f, ok := s.inbound.pop()
		if !ok {
			select {
			case <-s.inbound.notify:
				continue
			case <-s.closeCh:
				return
			}
		}
		s.dispatchOne(f)
	}
}

func (s *session) dispatchOne(f *Frame) {
	if s.handler == nil {
		s.DLogf("session: no local handler, ignoring request %d", f.ID)
		return
	}
	reply := s.handler(s, f)
	if reply == nil {
		return
	}
	reply.Kind = KindReply
	reply.ID = f.ID
	if err := s.send(reply); err != nil {
		s.DLogf("session: failed to send reply %d: %s", reply.ID, err)
	}
}

func (s *session) send(f *Frame) error {
	data, err := s.codec.EncodeFrame(f)
	if err != nil {
		return err
	}
	return s.transport.Send(data)
}

// sendRequest sends f (which must have Kind == KindRequest) and waits
// for its reply using the plain, non-reentrant wait: suitable for
// top-level Client calls issued from arbitrary application goroutines,
// which never need to service this session's own inbound queue.
func (s *session) sendRequest(f *Frame, timeout time.Duration) (*Frame, error) {
	ch := s.registerPending(f.ID)
	defer s.unregisterPending(f.ID)

	if err := s.send(f); err != nil {
		return nil, err
	}
	if f.Mode == ModeOff {
		return nil, nil
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-timeoutCh:
		return nil, ErrorTimeout
	case <-s.closeCh:
		return nil, s.failureError()
	}
}

// sendRequestReentrant is sendRequest's counterpart for calls made from
// within this very session's executor goroutine: while waiting for the
// nested reply, it keeps draining and dispatching this session's own
// inbound queue, so the peer on the other end — which may
// itself be blocked waiting on us — is never starved.
func (s *session) sendRequestReentrant(f *Frame) (*Frame, error) {
	ch := s.registerPending(f.ID)
	defer s.unregisterPending(f.ID)

	if err := s.send(f); err != nil {
		return nil, err
	}

	for {
		select {
		case reply := <-ch:
			return reply, nil
		case <-s.closeCh:
			return nil, s.failureError()
		default:
		}

		if next, ok := s.inbound.pop(); ok {
			s.dispatchOne(next)
			continue
		}

		select {
		case reply := <-ch:
			return reply, nil
		case <-s.inbound.notify:
			continue
		case <-s.closeCh:
			return nil, s.failureError()
		}
	}
}

func (s *session) sendNotice(f *Frame) error {
	f.Kind = KindNotice
	return s.send(f)
}

func (s *session) registerPending(id RequestID) chan *Frame {
	ch := make(chan *Frame, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) unregisterPending(id RequestID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) nextRequestID() RequestID {
	return s.ids.nextRequestID()
}

func (s *session) fail(err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.closeErr = err
	s.mu.Unlock()
	close(s.closeCh)
	transportErr := s.transport.Close()
	s.releases.stop()
	if s.onClose != nil {
		s.onClose(s)
	}
	return transportErr
}

func (s *session) failureError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrorConnectionLost
}

func (s *session) Close() error {
	return s.fail(ErrorConnectionLost)
}

func (s *session) RemoteAddress() string {
	return s.transport.RemoteAddress()
}
