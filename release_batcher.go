package objproxy

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// releaseBatcher coalesces RELEASE decrefs for one peer relationship into
// periodic Notice frames: a proxy dropped by the garbage collector
// schedules a release rather than blocking the collector on a network
// round trip, and bursts of drops (e.g. clearing a list of proxies)
// collapse into one notice.
type releaseBatcher struct {
	mu      sync.Mutex
	pending map[ObjectID]int
	timer   *time.Timer

	interval  time.Duration
	maxPairs  int
	immediate bool

	send func(pairs []ReleasePair)
}

func newReleaseBatcher(cfg Config, send func(pairs []ReleasePair)) *releaseBatcher {
	return &releaseBatcher{
		pending:   make(map[ObjectID]int),
		interval:  cfg.ReleaseBatchInterval,
		maxPairs:  cfg.ReleaseBatchMax,
		immediate: cfg.DebugImmediateRelease,
		send:      send,
	}
}

// add schedules n releases of id. Safe to call from the garbage
// collector's finalizer goroutine.
func (b *releaseBatcher) add(id ObjectID, n int) {
	b.mu.Lock()
	b.pending[id] += n
	full := len(b.pending) >= b.maxPairs
	immediate := b.immediate
	if !immediate && !full && b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flush)
	}
	b.mu.Unlock()

	if immediate || full {
		b.flush()
	}
}

func (b *releaseBatcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}
	pairs := make([]ReleasePair, 0, len(b.pending))
	for id, n := range b.pending {
		pairs = append(pairs, ReleasePair{ID: id, N: n})
	}
	b.pending = make(map[ObjectID]int)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.send(pairs)
}

// decodeReleasePairs recovers the []ReleasePair a RELEASE notice's Payload
// started life as. Payload round-trips through Frame as a bare
// interface{}, so on the receiving end it decodes as generic
// maps/slices rather than the concrete type; re-marshaling and
// unmarshaling into []ReleasePair is the cheapest way back.
func decodeReleasePairs(payload interface{}) ([]ReleasePair, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var pairs []ReleasePair
	if err := msgpack.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// stop cancels any pending flush timer without sending, used when the
// owning session has already gone away.
func (b *releaseBatcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
