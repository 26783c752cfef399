package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/gamehost-backend/pkg/enums"
)

// Decoder turns the envelope data of one event version into a typed value.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	event   enums.OutboxEventType
	version int
}

// DecoderRegistry maps (event type, schema version) to a payload decoder.
// Consumers use it so older envelopes keep decoding after a payload change.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]Decoder{}}
}

// Register adds a decoder. Registering the same pair twice replaces the first.
func (r *DecoderRegistry) Register(event enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	r.decoders[decoderKey{event, version}] = decode
	r.mu.Unlock()
}

// Decode fails for unknown pairs so callers can drop rather than guess.
func (r *DecoderRegistry) Decode(event enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{event, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", event, version)
	}
	return decode(data)
}

// JSONDecoder unmarshals into T and runs check when it is non-nil.
func JSONDecoder[T any](check func(T) error) Decoder {
	return func(data json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode %T: %w", out, err)
		}
		if check != nil {
			if err := check(out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}
