package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written on every new envelope. Readers treat a zero
// version as 1 for rows stored before the field existed.
const EnvelopeVersion = 1

var (
	ErrEnvelopeEventID = errors.New("envelope event id is missing or malformed")
	ErrEnvelopeEmpty   = errors.New("envelope carries no data")
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. The same bytes travel from the
// outbox_events row to the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// SealEnvelope marshals data into a fresh envelope identified by eventID.
func SealEnvelope(eventID uuid.UUID, version int, occurredAt time.Time, actor *ActorRef, data any) (PayloadEnvelope, error) {
	if eventID == uuid.Nil {
		return PayloadEnvelope{}, ErrEnvelopeEventID
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	if version <= 0 {
		version = EnvelopeVersion
	}
	env := PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: occurredAt.UTC(),
		Actor:      actor,
		Data:       raw,
	}
	return env, env.Validate()
}

// OpenEnvelope decodes and validates a stored or delivered envelope.
func OpenEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	return env, env.Validate()
}

// Validate rejects envelopes without a usable id or body.
func (e PayloadEnvelope) Validate() error {
	if id, err := uuid.Parse(e.EventID); err != nil || id == uuid.Nil {
		return ErrEnvelopeEventID
	}
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEnvelopeEmpty
	}
	return nil
}

// ParsedEventID returns the envelope event id as a uuid.
func (e PayloadEnvelope) ParsedEventID() (uuid.UUID, error) {
	return uuid.Parse(e.EventID)
}

// Encode renders the envelope as stored in outbox_events.payload.
func (e PayloadEnvelope) Encode() (json.RawMessage, error) {
	return json.Marshal(e)
}
