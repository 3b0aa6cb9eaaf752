package fold

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainEvent struct {
	Value string `json:"value"`
}

func TestEventRegistry(t *testing.T) {
	t.Run("Register handles pointer", func(t *testing.T) {
		r := NewEventRegistry()
		r.Register("plain", &plainEvent{})

		typ, ok := r.Lookup("plain")
		require.True(t, ok)
		assert.Equal(t, "plainEvent", typ.Name())
	})

	t.Run("RegisterAll prefers EventType", func(t *testing.T) {
		r := NewEventRegistry()
		r.RegisterAll(accountOpened{}, &deposited{}, plainEvent{})

		assert.Equal(t, []string{"account-opened", "deposited", "plainEvent"}, r.RegisteredTypes())
	})

	t.Run("Lookup returns false for unregistered type", func(t *testing.T) {
		r := NewEventRegistry()

		_, ok := r.Lookup("withdrawn")
		assert.False(t, ok)
	})

	t.Run("Count", func(t *testing.T) {
		r := NewEventRegistry()
		assert.Equal(t, 0, r.Count())

		r.Register("a", plainEvent{})
		r.Register("a", plainEvent{})
		r.Register("b", plainEvent{})
		assert.Equal(t, 2, r.Count())
	})
}

func TestGetEventType(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
		want  string
	}{
		{"EventTyper value", deposited{}, "deposited"},
		{"EventTyper pointer", &withdrawn{}, "withdrawn"},
		{"struct name", plainEvent{}, "plainEvent"},
		{"struct pointer", &plainEvent{}, "plainEvent"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetEventType(tt.event))
		})
	}
}

func TestJSONSerializer(t *testing.T) {
	t.Run("NewJSONSerializerWithRegistry handles nil registry", func(t *testing.T) {
		s := NewJSONSerializerWithRegistry(nil)

		assert.NotNil(t, s.Registry())
	})

	t.Run("round trip registered type", func(t *testing.T) {
		s := NewJSONSerializer()
		s.RegisterAll(deposited{})

		data, err := s.Serialize(deposited{Amount: 42})
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":42}`, string(data))

		result, err := s.Deserialize(data, "deposited")
		require.NoError(t, err)
		assert.Equal(t, deposited{Amount: 42}, result)
	})

	t.Run("unregistered type falls back to map", func(t *testing.T) {
		s := NewJSONSerializer()

		result, err := s.Deserialize([]byte(`{"amount":7}`), "deposited")

		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"amount": float64(7)}, result)
	})

	t.Run("nil event", func(t *testing.T) {
		_, err := NewJSONSerializer().Serialize(nil)

		assert.True(t, errors.Is(err, ErrSerializationFailed))
	})

	t.Run("unsupported value", func(t *testing.T) {
		_, err := NewJSONSerializer().Serialize(make(chan int))

		var serErr *SerializationError
		require.True(t, errors.As(err, &serErr))
		assert.Equal(t, "serialize", serErr.Operation)
	})

	t.Run("empty data", func(t *testing.T) {
		_, err := NewJSONSerializer().Deserialize(nil, "deposited")

		assert.True(t, errors.Is(err, ErrSerializationFailed))
	})

	t.Run("malformed data", func(t *testing.T) {
		s := NewJSONSerializer()
		s.RegisterAll(deposited{})

		_, err := s.Deserialize([]byte(`{"amount":`), "deposited")

		var serErr *SerializationError
		require.True(t, errors.As(err, &serErr))
		assert.Equal(t, "deposited", serErr.EventType)
		assert.Equal(t, "deserialize", serErr.Operation)
	})
}

func TestSerializeEvent(t *testing.T) {
	s := NewJSONSerializer()
	meta := Metadata{}.WithUserID("u-1")

	data, err := SerializeEvent(s, withdrawn{Amount: 3}, meta)

	require.NoError(t, err)
	assert.Equal(t, "withdrawn", data.Type)
	assert.JSONEq(t, `{"amount":3}`, string(data.Data))
	assert.Equal(t, "u-1", data.Metadata.UserID)
}

func TestDeserializeEvent(t *testing.T) {
	s := NewJSONSerializer()
	s.RegisterAll(deposited{})

	t.Run("decodes payload", func(t *testing.T) {
		event, err := DeserializeEvent(s, StoredEvent{
			StreamID: "account-1",
			Type:     "deposited",
			Data:     []byte(`{"amount":5}`),
			Version:  2,
		})

		require.NoError(t, err)
		assert.Equal(t, deposited{Amount: 5}, event.Data)
		assert.Equal(t, int64(2), event.Version)
	})

	t.Run("tombstoned record has no data", func(t *testing.T) {
		event, err := DeserializeEvent(s, StoredEvent{
			StreamID:   "account-1",
			Type:       "deposited",
			Version:    3,
			Tombstoned: true,
		})

		require.NoError(t, err)
		assert.Nil(t, event.Data)
		assert.True(t, event.Tombstoned)
	})
}
