package objproxy

import "fmt"

// executeBuiltin implements the fixed surface exposed by ObjectID 0, the
// Server itself: IMPORT, GETITEM, and PING only — DELETE is not a
// distinct opcode, it's the ordinary RELEASE notice path any
// exported-by-reference object already goes through.
func (srv *Server) executeBuiltin(f *Frame, args []interface{}, kwargs map[string]interface{}, s *session) (interface{}, error) {
	switch f.Op {
	case OpImport, OpGetItem:
		if len(args) < 1 {
			return nil, newWireError(ErrUnsupportedOp, "IMPORT/GETITEM on the server object requires a name")
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, newWireError(ErrUnsupportedOp, "IMPORT/GETITEM on the server object requires a string name")
		}
		value, ok := srv.lookupExport(name)
		if !ok {
			return nil, newWireError(ErrUnknownObject, fmt.Sprintf("no export named %q", name))
		}
		return value, nil
	case OpPing:
		return "pong", nil
	default:
		return nil, newWireError(ErrUnsupportedOp, fmt.Sprintf("opcode %q is not valid against the server object", f.Op))
	}
}
