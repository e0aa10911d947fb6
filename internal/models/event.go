package models

import (
	"encoding/json"
	"maps"
)

// Fields holds the client-supplied attributes of an event.
type Fields map[string]any

// Event is a stored record. It is serialized as one flat JSON object:
// the client fields, the reaction counters and the id.
type Event struct {
	ID        string
	Fields    Fields
	Reactions map[string]int64
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+len(e.Reactions)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	for k, v := range e.Reactions {
		out[k] = v
	}
	out["id"] = e.ID
	return json.Marshal(out)
}

// Clone returns a copy that shares no top-level maps with e.
func (e Event) Clone() Event {
	return Event{
		ID:        e.ID,
		Fields:    maps.Clone(e.Fields),
		Reactions: maps.Clone(e.Reactions),
	}
}

// WithoutID returns a copy of f with any "id" key removed. Identity is
// owned by the store and never taken from a request body.
func (f Fields) WithoutID() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge returns f with every key of patch applied on top of it.
func (f Fields) Merge(patch Fields) Fields {
	out := maps.Clone(f)
	if out == nil {
		out = make(Fields, len(patch))
	}
	for k, v := range patch.WithoutID() {
		out[k] = v
	}
	return out
}
