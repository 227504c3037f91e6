package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *structpb.Value { return &structpb.Value{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// ProtoOptional encodes an optional string as google.protobuf.Value:
// null_value when absent, string_value otherwise.
type ProtoOptional struct {
	inner Protobuf[*structpb.Value]
}

var _ Optional = ProtoOptional{}

func NewProtoOptional() ProtoOptional {
	return ProtoOptional{inner: NewProtobuf(func() *structpb.Value { return &structpb.Value{} })}
}

func (c ProtoOptional) Encode(v *string) ([]byte, error) {
	m := structpb.NewNullValue()
	if v != nil {
		m = structpb.NewStringValue(*v)
	}
	return c.inner.Encode(m)
}

func (c ProtoOptional) Decode(b []byte) (*string, error) {
	m, err := c.inner.Decode(b)
	if err != nil {
		return nil, err
	}
	switch k := m.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		s := k.StringValue
		return &s, nil
	default:
		return nil, fmt.Errorf("codec: unexpected protobuf value kind %T", k)
	}
}
