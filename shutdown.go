package objproxy

import "sync"

// OnceShutdownHandler is an interface that must be implemented by the
// object managed by ShutdownHelper.
type OnceShutdownHandler interface {
	// HandleOnceShutdown will be called exactly once, in its own
	// goroutine. It should take completionError as an advisory
	// completion value, actually shut down, then return the real
	// completion value.
	HandleOnceShutdown(completionError error) error
}

// ShutdownHelper is a base that manages clean asynchronous object
// shutdown for an object that implements OnceShutdownHandler.
type ShutdownHelper struct {
	// Logger is the Logger used for log output from this helper.
	Logger

	// Lock is a general-purpose mutex for this helper; it may be used
	// as a general-purpose lock by derived objects as well.
	Lock sync.Mutex

	// shutdownHandler is called exactly once to perform the object's
	// actual shutdown work.
	shutdownHandler OnceShutdownHandler

	// isStartedShutdown is set to true when shutdown has begun.
	isStartedShutdown bool

	// shutdownErr holds the advisory completion error until shutdown
	// starts, then the final completion status once it is done.
	shutdownErr error

	// shutdownDoneChan is closed when shutdown is completely done.
	shutdownDoneChan chan struct{}
}

// InitShutdownHelper initializes a new ShutdownHelper in place.
func (h *ShutdownHelper) InitShutdownHelper(
	logger Logger,
	shutdownHandler OnceShutdownHandler,
) {
	h.Logger = logger
	h.shutdownHandler = shutdownHandler
	h.shutdownDoneChan = make(chan struct{})
}

// StartShutdown schedules asynchronous shutdown of the object. If the
// object has already been scheduled for shutdown, it has no effect.
// completionErr is an advisory error (or nil) to use as the completion
// status from WaitShutdown(); HandleOnceShutdown's return value takes
// precedence.
func (h *ShutdownHelper) StartShutdown(completionErr error) {
	h.Lock.Lock()
	if h.isStartedShutdown {
		h.Lock.Unlock()
		return
	}
	h.isStartedShutdown = true
	h.shutdownErr = completionErr
	h.Lock.Unlock()

	h.DLogf("shutdown started")
	go func() {
		h.shutdownErr = h.shutdownHandler.HandleOnceShutdown(h.shutdownErr)
		h.DLogf("shutdown done")
		close(h.shutdownDoneChan)
	}()
}

// WaitShutdown blocks until the object is completely shut down, then
// returns the final completion status. It does not initiate shutdown.
func (h *ShutdownHelper) WaitShutdown() error {
	<-h.shutdownDoneChan
	return h.shutdownErr
}

// Shutdown performs a synchronous shutdown: it initiates shutdown if it
// has not already started, waits for it to complete, then returns the
// final shutdown status.
func (h *ShutdownHelper) Shutdown(completionError error) error {
	h.StartShutdown(completionError)
	return h.WaitShutdown()
}

// Close is a default implementation of Close(), which simply shuts down
// with an advisory completion status of nil, and returns the final
// completion status.
func (h *ShutdownHelper) Close() error {
	return h.Shutdown(nil)
}
