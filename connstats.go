package objproxy

import (
	"fmt"
	"sync/atomic"

	"github.com/jpillora/sizestr"
)

// ConnStats tracks open/total connection counts and cumulative bytes
// transferred for a Transport.
type ConnStats struct {
	count int32
	open  int32
	sent  int64
	recvd int64
}

// New adds one to the total connection count.
func (c *ConnStats) New() int32 {
	return atomic.AddInt32(&c.count, 1)
}

// Open adds one to the current open connection count.
func (c *ConnStats) Open() {
	atomic.AddInt32(&c.open, 1)
}

// Close subtracts one from the current open connection count.
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

// AddSent records n bytes sent.
func (c *ConnStats) AddSent(n int) {
	atomic.AddInt64(&c.sent, int64(n))
}

// AddRecvd records n bytes received.
func (c *ConnStats) AddRecvd(n int) {
	atomic.AddInt64(&c.recvd, int64(n))
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d, sent %s, received %s]",
		atomic.LoadInt32(&c.open), atomic.LoadInt32(&c.count),
		sizestr.ToString(atomic.LoadInt64(&c.sent)),
		sizestr.ToString(atomic.LoadInt64(&c.recvd)))
}
