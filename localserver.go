package objproxy

// LocalServer is a Server that shares a process with one or more Client
// instances, giving values the local process passes by reference (most
// commonly callback functions) a concrete home to be called back into
// It is created explicitly — a Client with no paired
// LocalServer simply has nothing to offer by reference, and any attempt
// to do so fails with NO_LOCAL_SERVER.
type LocalServer struct {
	*Server
}

// NewLocalServer binds address and returns a LocalServer ready to be
// passed to NewClient via WithLocalServer.
func NewLocalServer(address string, cfg Config) (*LocalServer, error) {
	srv, err := NewServer(address, cfg)
	if err != nil {
		return nil, err
	}
	return &LocalServer{Server: srv}, nil
}
