// Package protobuf provides a Protocol Buffers serializer for fold events.
//
// Events that implement proto.Message are encoded with proto.Marshal. Plain Go
// structs are converted through their JSON form into a google.protobuf.Struct
// and encoded as that message, so domain events do not need generated code.
//
// Usage:
//
//	s := protobuf.NewSerializer()
//	s.MustRegister("wrapped-note", &wrapperspb.StringValue{})
//	s.RegisterAll(shoppingcart.EventExamples()...)
//
// Unlike the JSON and MessagePack serializers, deserializing an unregistered
// type fails with fold.ErrEventTypeNotRegistered.
package protobuf

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/AshkanYarmoradi/go-fold"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	_ fold.Serializer       = (*Serializer)(nil)
	_ fold.RegistryProvider = (*Serializer)(nil)
)

var (
	// ErrNilEvent indicates an attempt to serialize a nil event.
	ErrNilEvent = errors.New("fold/protobuf: cannot serialize nil event")

	// ErrEmptyData indicates an attempt to deserialize nil data.
	ErrEmptyData = errors.New("fold/protobuf: cannot deserialize nil data")

	// ErrNotProtoMessage indicates a type registered with MustRegister that is
	// not a proto.Message.
	ErrNotProtoMessage = errors.New("fold/protobuf: type must implement proto.Message")

	// ErrNotObject indicates a plain event whose JSON form is not an object.
	ErrNotObject = errors.New("fold/protobuf: event must encode as a JSON object")
)

var protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// SerializerOption configures the Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing registry.
func WithRegistry(registry *fold.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// Serializer implements fold.Serializer using Protocol Buffers.
type Serializer struct {
	registry *fold.EventRegistry
}

// NewSerializer creates a new Protocol Buffers serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{registry: fold.NewEventRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an event type to the registry.
func (s *Serializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers examples under their event type names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// MustRegister registers a generated message type and panics if example is
// not a proto.Message.
func (s *Serializer) MustRegister(eventType string, example interface{}) {
	if !isProtoType(reflect.TypeOf(example)) {
		panic(fold.NewSerializationError(eventType, "register", ErrNotProtoMessage))
	}
	s.registry.Register(eventType, example)
}

// Registry returns the underlying EventRegistry.
func (s *Serializer) Registry() *fold.EventRegistry {
	return s.registry
}

// Serialize converts an event to Protocol Buffers binary format.
func (s *Serializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, fold.NewSerializationError("nil", "serialize", ErrNilEvent)
	}
	eventType := fold.GetEventType(event)

	msg, err := toMessage(event)
	if err != nil {
		return nil, fold.NewSerializationError(eventType, "serialize", err)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fold.NewSerializationError(eventType, "serialize", err)
	}
	return data, nil
}

// Deserialize converts Protocol Buffers binary data back to an event of the
// registered type. Empty data is valid and yields the zero value.
func (s *Serializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if data == nil {
		return nil, fold.NewSerializationError(eventType, "deserialize", ErrEmptyData)
	}

	t, ok := s.registry.Lookup(eventType)
	if !ok {
		return nil, fold.NewSerializationError(eventType, "deserialize", fold.NewEventTypeNotRegisteredError(eventType))
	}

	ptr := reflect.New(t)
	if msg, ok := ptr.Interface().(proto.Message); ok {
		if err := proto.Unmarshal(data, msg); err != nil {
			return nil, fold.NewSerializationError(eventType, "deserialize", err)
		}
		return ptr.Elem().Interface(), nil
	}

	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fold.NewSerializationError(eventType, "deserialize", err)
	}
	raw, err := protojson.Marshal(&st)
	if err != nil {
		return nil, fold.NewSerializationError(eventType, "deserialize", err)
	}
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, fold.NewSerializationError(eventType, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}

// toMessage returns event itself when it is a message, or its JSON form as a Struct.
func toMessage(event interface{}) (proto.Message, error) {
	if msg, ok := event.(proto.Message); ok {
		return msg, nil
	}

	// Generated messages are registered by value, so accept them addressable too.
	v := reflect.ValueOf(event)
	if v.Kind() != reflect.Ptr && isProtoType(v.Type()) {
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		return ptr.Interface().(proto.Message), nil
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, v.Type())
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, err
	}
	return st, nil
}

func isProtoType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() != reflect.Ptr {
		t = reflect.PointerTo(t)
	}
	return t.Implements(protoMessageType)
}
