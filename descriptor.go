package objproxy

import (
	"fmt"
	"strings"
)

// AttributePathElement is one step of a lazy attribute/index chain:
// either a named attribute or an index key.
type AttributePathElement struct {
	Name    string      `msgpack:"name,omitempty"`
	Index   interface{} `msgpack:"index,omitempty"`
	IsIndex bool        `msgpack:"is_index"`
}

// ProxyDescriptor is the wire-serializable identity of a remote value.
// Two descriptors denote the same live object iff their (ServerAddress,
// ObjectID, AttributesPath) are equal.
type ProxyDescriptor struct {
	ServerAddress  string                  `msgpack:"server_address"`
	ObjectID       ObjectID                `msgpack:"object_id"`
	TypeName       string                  `msgpack:"type_name"`
	Capabilities   Capability              `msgpack:"capabilities"`
	AttributesPath []AttributePathElement  `msgpack:"attributes_path,omitempty"`
}

// key returns the ProxyTable lookup key for this descriptor.
func (d *ProxyDescriptor) key() proxyKey {
	var b strings.Builder
	for _, e := range d.AttributesPath {
		b.WriteByte('.')
		if e.IsIndex {
			fmt.Fprintf(&b, "[%v]", e.Index)
		} else {
			b.WriteString(e.Name)
		}
	}
	return proxyKey{
		serverAddress: d.ServerAddress,
		objectID:      d.ObjectID,
		attrPath:      b.String(),
	}
}

// withAttr returns a new descriptor with one more path element appended,
// used by Proxy to compose lazy attribute/index chains without a round
// trip.
func (d *ProxyDescriptor) withAttr(elem AttributePathElement) *ProxyDescriptor {
	path := make([]AttributePathElement, len(d.AttributesPath)+1)
	copy(path, d.AttributesPath)
	path[len(d.AttributesPath)] = elem
	return &ProxyDescriptor{
		ServerAddress:  d.ServerAddress,
		ObjectID:       d.ObjectID,
		TypeName:       d.TypeName,
		Capabilities:   d.Capabilities,
		AttributesPath: path,
	}
}
