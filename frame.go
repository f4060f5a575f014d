package objproxy

// Opcode identifies the operation a Request asks the target to perform.
// Implementations expose only this fixed table and statically reject
// anything else.
type Opcode string

const (
	OpCall     Opcode = "CALL"
	OpGetAttr  Opcode = "GETATTR"
	OpSetAttr  Opcode = "SETATTR"
	OpGetItem  Opcode = "GETITEM"
	OpSetItem  Opcode = "SETITEM"
	OpDelItem  Opcode = "DELITEM"
	OpCmp      Opcode = "CMP"
	OpLen      Opcode = "LEN"
	OpRelease  Opcode = "RELEASE"
	OpImport   Opcode = "IMPORT"
	OpGetID    Opcode = "GET_ID"
	OpPing     Opcode = "PING"
	OpCancel   Opcode = "CANCEL"
)

// CmpOp identifies which structural comparison a CMP opcode performs.
type CmpOp string

const (
	CmpEq CmpOp = "=="
	CmpNe CmpOp = "!="
	CmpLt CmpOp = "<"
	CmpLe CmpOp = "<="
	CmpGt CmpOp = ">"
	CmpGe CmpOp = ">="
)

// InvocationMode is how a caller wants a Request handled: block for a
// reply, observe later via a Future, or not be told at all.
type InvocationMode string

const (
	ModeSync  InvocationMode = "sync"
	ModeAsync InvocationMode = "async"
	ModeOff   InvocationMode = "off"
)

// ReturnMode governs whether a reply carries a by-value copy or a new
// proxy.
type ReturnMode string

const (
	ReturnValue ReturnMode = "value"
	ReturnProxy ReturnMode = "proxy"
	ReturnAuto  ReturnMode = "auto"
)

// FrameKind distinguishes a new request from a reply to one this peer
// sent, and from a fire-and-forget server notice.
type FrameKind string

const (
	KindRequest FrameKind = "req"
	KindReply   FrameKind = "rep"
	KindNotice  FrameKind = "notice"
)

// Frame is the conceptual wire record exchanged between peers. Every
// Frame exchanged over a Transport is one Codec-encoded value of this
// shape.
type Frame struct {
	Kind   FrameKind   `msgpack:"kind"`
	ID     RequestID   `msgpack:"id"`
	Op     Opcode      `msgpack:"op,omitempty"`
	CmpOp  CmpOp       `msgpack:"cmp_op,omitempty"`
	Target ObjectID    `msgpack:"target,omitempty"`
	Path   []AttributePathElement `msgpack:"path,omitempty"`

	Args   []interface{}          `msgpack:"args,omitempty"`
	Kwargs map[string]interface{} `msgpack:"kwargs,omitempty"`

	Mode       InvocationMode `msgpack:"mode,omitempty"`
	ReturnMode ReturnMode     `msgpack:"return_mode,omitempty"`

	Status  ErrorKind    `msgpack:"status,omitempty"`
	Remote  *RemoteError `msgpack:"remote,omitempty"`
	Payload interface{}  `msgpack:"payload,omitempty"`

	// Notice is a well-known notice name for Kind == KindNotice
	// ("RELEASE", "LOG", "SERVER_CLOSED").
	Notice string `msgpack:"notice,omitempty"`
}

// Notice names, sent with Kind == KindNotice, ID == 0.
const (
	NoticeRelease      = "RELEASE"
	NoticeLog          = "LOG"
	NoticeServerClosed = "SERVER_CLOSED"
)

// ReleasePair is one (object id, decref count) entry of a batched RELEASE
// notice.
type ReleasePair struct {
	ID ObjectID `msgpack:"id"`
	N  int      `msgpack:"n"`
}

// isOK reports whether a reply Frame represents success.
func (f *Frame) isOK() bool {
	return f.Status == ""
}
