package trackerpb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Message is implemented by every wire type in this package.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec encodes Message values in protobuf binary format. It reports the
// "proto" name so peers using generated code interoperate unchanged.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("trackerpb: cannot marshal %T", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("trackerpb: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (Codec) Name() string {
	return "proto"
}
