// Package msgpack provides a MessagePack serializer for fold events.
//
// MessagePack produces smaller payloads than JSON while keeping the same
// field names: struct fields are keyed by their json tags, so an event can be
// moved between the JSON and MessagePack codecs without retagging.
//
// Basic usage:
//
//	serializer := msgpack.NewSerializer()
//	serializer.RegisterAll(shoppingcart.EventExamples()...)
//	store := fold.New(adapter, fold.WithSerializer(serializer))
package msgpack

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ fold.Serializer       = (*Serializer)(nil)
	_ fold.RegistryProvider = (*Serializer)(nil)
)

// Serializer is a MessagePack implementation of fold.Serializer.
type Serializer struct {
	registry *fold.EventRegistry
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithRegistry shares an existing registry, typically one already filled for
// the JSON serializer.
func WithRegistry(registry *fold.EventRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{registry: fold.NewEventRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a mapping from eventType to the Go type of the example.
func (s *Serializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers examples under their event type names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying EventRegistry.
func (s *Serializer) Registry() *fold.EventRegistry {
	return s.registry
}

// Serialize converts an event to MessagePack bytes.
func (s *Serializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, fold.NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(event); err != nil {
		return nil, fold.NewSerializationError(fold.GetEventType(event), "serialize", err)
	}
	return buf.Bytes(), nil
}

// Deserialize converts MessagePack bytes back to an event.
// Registered types decode into a value of that type. Unregistered types
// decode into a map[string]interface{}.
func (s *Serializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, fold.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")

	t, ok := s.registry.Lookup(eventType)
	if !ok {
		var result map[string]interface{}
		if err := dec.Decode(&result); err != nil {
			return nil, fold.NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := dec.Decode(ptr.Interface()); err != nil {
		return nil, fold.NewSerializationError(eventType, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}
