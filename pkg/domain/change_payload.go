package domain

import (
	"bytes"
	"encoding/json"
)

// ChangePayload wraps a JSON snapshot of a record's before/after state.
// Callers unmarshal the raw bytes into typed structures as needed.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return ChangePayload{defined: true, raw: raw}, nil
}

// UndefinedChangePayload returns the empty snapshot used for the missing side
// of a create or delete.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned when
// the payload is undefined or empty.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// Decode unmarshals the snapshot into out. It returns false when the payload
// is empty or cannot be decoded.
func (p ChangePayload) Decode(out any) bool {
	if p.IsEmpty() {
		return false
	}
	return json.Unmarshal(p.raw, out) == nil
}

// MarshalJSON renders empty payloads as null.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	return cloneRawMessage(p.raw), nil
}

// UnmarshalJSON captures the raw snapshot; null leaves the payload undefined.
func (p *ChangePayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = ChangePayload{}
		return nil
	}
	*p = NewChangePayload(trimmed)
	return nil
}

// DecodeChangePayload decodes a payload into a value of type T. It returns the
// zero value and false if the payload is empty or cannot be unmarshaled.
func DecodeChangePayload[T any](payload ChangePayload) (T, bool) {
	var out T
	if !payload.Decode(&out) {
		var zero T
		return zero, false
	}
	return out, true
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
