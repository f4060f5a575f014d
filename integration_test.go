package objproxy

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Logger:                NewLogger("test", LogLevelError),
		DebugImmediateRelease: true,
	}
}

// TestSyncCallAdd verifies a plain sync CALL through a proxy to an
// exported function returns its result by value.
func TestSyncCallAdd(t *testing.T) {
	srv, err := NewServer("inproc://add-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	srv.Export("add", func(x, y int64) int64 { return x + y })

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "add", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	p, ok := v.(*Proxy)
	if !ok {
		t.Fatalf("Import(add) = %T, want *Proxy", v)
	}

	got, err := p.Call([]interface{}{int64(2), int64(3)}, nil, ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Call(add, 2, 3): %s", err)
	}
	if got != int64(5) {
		t.Errorf("add(2,3) = %v, want 5", got)
	}
}

// TestReentrantCallback verifies a local callback passed to a remote
// function is invoked through a Proxy that
// calls back over the very session the original request arrived on,
// while that session's executor is otherwise blocked awaiting the
// nested reply.
func TestReentrantCallback(t *testing.T) {
	local, err := NewLocalServer("inproc://cb-local", testConfig())
	if err != nil {
		t.Fatalf("NewLocalServer: %s", err)
	}
	defer local.Close()

	srv, err := NewServer("inproc://cb-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	srv.Export("apply", func(cb *Proxy, v int64) (int64, error) {
		res, err := cb.Call([]interface{}{v}, nil, ModeSync, ReturnAuto)
		if err != nil {
			return 0, err
		}
		n, _ := res.(int64)
		return n + 1, nil
	})

	cli := NewClient(testConfig(), WithLocalServer(local))
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "apply", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	applyProxy := v.(*Proxy)

	double := func(x int64) int64 { return x * 10 }
	got, err := applyProxy.Call([]interface{}{double, int64(4)}, nil, ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Call(apply, double, 4): %s", err)
	}
	if got != int64(41) {
		t.Errorf("apply(double, 4) = %v, want 41", got)
	}
}

// TestLazyAttributePath verifies composing Attr/Index never round-trips;
// only the terminal operation does.
func TestLazyAttributePath(t *testing.T) {
	srv, err := NewServer("inproc://path-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	srv.Export("data", map[string]interface{}{
		"k": map[string]interface{}{"k2": "leaf"},
	})

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "data", ModeSync, ReturnProxy)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	root := v.(*Proxy)

	n, err := root.Len()
	if err != nil {
		t.Fatalf("Len(): %s", err)
	}
	if n != 1 {
		t.Errorf("len(data) = %d, want 1", n)
	}

	// Composing two Index steps must not send anything; only the final
	// GetItem does.
	leafProxy := root.Index("k").Index("k2")
	if leafProxy.session == nil {
		t.Fatalf("composed proxy lost its session")
	}
	got, err := leafProxy.Value(ModeSync)
	if err != nil {
		t.Fatalf("Value(): %s", err)
	}
	if got != "leaf" {
		t.Errorf("data[k][k2] = %v, want leaf", got)
	}
}

// TestGetIDIdentity verifies GET_ID returns the same underlying
// ObjectID regardless of the path used to reach the value.
func TestGetIDIdentity(t *testing.T) {
	srv, err := NewServer("inproc://id-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	shared := map[string]interface{}{"k": "v"}
	srv.Export("a", shared)
	srv.Export("b", map[string]interface{}{"nested": shared})

	cli := NewClient(testConfig())
	defer cli.Close()

	va, err := cli.Import(srv.Address(), "a", ModeSync, ReturnProxy)
	if err != nil {
		t.Fatalf("Import(a): %s", err)
	}
	vb, err := cli.Import(srv.Address(), "b", ModeSync, ReturnProxy)
	if err != nil {
		t.Fatalf("Import(b): %s", err)
	}

	idA, err := va.(*Proxy).GetID()
	if err != nil {
		t.Fatalf("GetID(a): %s", err)
	}
	idB, err := vb.(*Proxy).Index("nested").GetID()
	if err != nil {
		t.Fatalf("GetID(b.nested): %s", err)
	}
	if idA != idB {
		t.Errorf("GetID(a) = %d, GetID(b.nested) = %d, want equal", idA, idB)
	}
}

// TestAsyncSleep verifies an async CALL's Future reports no result
// before completion and the result afterward.
func TestAsyncSleep(t *testing.T) {
	srv, err := NewServer("inproc://async-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	srv.Export("sleep", func(seconds float64) error {
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return nil
	})

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "sleep", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	p := v.(*Proxy)

	fut, err := p.AsyncCall([]interface{}{0.2}, nil, ReturnAuto)
	if err != nil {
		t.Fatalf("AsyncCall: %s", err)
	}
	if fut.HasResult() {
		t.Errorf("HasResult() immediately after issuing sleep(0.2) should be false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := fut.Result(ctx)
	if err != nil {
		t.Fatalf("Result: %s", err)
	}
	if res != nil {
		t.Errorf("sleep(0.2) result = %v, want nil", res)
	}
	if !fut.HasResult() {
		t.Errorf("HasResult() after Result() should be true")
	}
}

// TestFutureCancel verifies Cancel marks a Future CANCELLED immediately
// regardless of any later reply.
func TestFutureCancel(t *testing.T) {
	srv, err := NewServer("inproc://cancel-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	srv.Export("sleep", func(seconds float64) error {
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return nil
	})

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "sleep", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	p := v.(*Proxy)

	fut, err := p.AsyncCall([]interface{}{0.3}, nil, ReturnAuto)
	if err != nil {
		t.Fatalf("AsyncCall: %s", err)
	}
	fut.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = fut.Result(ctx)
	we, ok := err.(*WireError)
	if !ok || we.Kind != ErrCancelled {
		t.Errorf("Result() after Cancel() = %#v, want *WireError{Kind: CANCELLED}", err)
	}

	// A late reply arriving after Cancel must not flip the result.
	time.Sleep(400 * time.Millisecond)
	_, err = fut.Result(ctx)
	we, ok = err.(*WireError)
	if !ok || we.Kind != ErrCancelled {
		t.Errorf("Result() after late reply = %#v, want still CANCELLED", err)
	}
}

// TestOffModeSwallowsErrors verifies fire-and-forget calls never surface
// a remote failure to the caller.
func TestOffModeSwallowsErrors(t *testing.T) {
	srv, err := NewServer("inproc://off-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	defer srv.Close()
	called := make(chan struct{}, 1)
	srv.Export("explode", func() error {
		called <- struct{}{}
		return fmt.Errorf("boom")
	})

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "explode", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	p := v.(*Proxy)

	if _, err := p.Call(nil, nil, ModeOff, ReturnAuto); err != nil {
		t.Fatalf("off-mode Call returned an error: %s", err)
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("server-side function was never invoked")
	}
}

// TestServerCloseFailsInFlightSyncCall verifies killing the Server while
// a sync call is in flight fails the call with CONNECTION_LOST rather
// than hanging.
func TestServerCloseFailsInFlightSyncCall(t *testing.T) {
	srv, err := NewServer("inproc://kill-server", testConfig())
	if err != nil {
		t.Fatalf("NewServer: %s", err)
	}
	srv.Export("block", func() error {
		time.Sleep(2 * time.Second)
		return nil
	})

	cli := NewClient(testConfig())
	defer cli.Close()

	v, err := cli.Import(srv.Address(), "block", ModeSync, ReturnAuto)
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	p := v.(*Proxy)

	errCh := make(chan error, 1)
	go func() {
		_, callErr := p.Call(nil, nil, ModeSync, ReturnAuto)
		errCh <- callErr
	}()

	time.Sleep(50 * time.Millisecond)
	srv.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("in-flight call completed successfully after the Server was closed")
		}
		we, ok := err.(*WireError)
		if !ok || (we.Kind != ErrConnectionLost && we.Kind != ErrShuttingDown) {
			t.Errorf("in-flight call error = %#v, want CONNECTION_LOST or SHUTTING_DOWN", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight sync call hung instead of failing promptly on Server close")
	}
}
