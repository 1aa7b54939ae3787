package domain

import (
	"encoding/json"
)

// GuestStatus is the RSVP status of an invited guest.
type GuestStatus string

const (
	GuestStatusPending   GuestStatus = "pending"
	GuestStatusConfirmed GuestStatus = "confirmed"
	GuestStatusDeclined  GuestStatus = "declined"
)

// StatusFor maps an attendance decision to the guest status it implies.
func StatusFor(attending bool) GuestStatus {
	if attending {
		return GuestStatusConfirmed
	}
	return GuestStatusDeclined
}

// Document is an opaque JSON object as stored by the remote document store.
type Document map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (d Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// Object returns the nested object at key, or nil.
func (d Document) Object(key string) Document {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case map[string]any:
		return Document(v)
	case Document:
		return v
	}
	return nil
}

// GuestState is the guest sub-document of an invitation. The fields that
// local code mutates are typed; everything else is carried in Extra and
// written back untouched.
type GuestState struct {
	Status        GuestStatus
	Attending     *bool
	DeclineReason string
	RespondedAt   int64
	Extra         map[string]any
}

var guestKnownKeys = map[string]struct{}{
	"status":        {},
	"attending":     {},
	"declineReason": {},
	"respondedAt":   {},
}

// MarshalJSON flattens typed fields and Extra into one object. Typed fields
// win over Extra entries with the same key.
func (g GuestState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Extra)+4)
	for k, v := range g.Extra {
		if _, known := guestKnownKeys[k]; known {
			continue
		}
		out[k] = v
	}
	if g.Status != "" {
		out["status"] = g.Status
	}
	if g.Attending != nil {
		out["attending"] = *g.Attending
	}
	if g.DeclineReason != "" {
		out["declineReason"] = g.DeclineReason
	}
	if g.RespondedAt != 0 {
		out["respondedAt"] = g.RespondedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits an object into typed fields and Extra.
func (g *GuestState) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*g = GuestState{}
	if raw == nil {
		return nil
	}
	if v, ok := raw["status"]; ok {
		if err := json.Unmarshal(v, &g.Status); err != nil {
			return err
		}
	}
	if v, ok := raw["attending"]; ok && string(v) != "null" {
		var a bool
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		g.Attending = &a
	}
	if v, ok := raw["declineReason"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &g.DeclineReason); err != nil {
			return err
		}
	}
	if v, ok := raw["respondedAt"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &g.RespondedAt); err != nil {
			return err
		}
	}
	for k, v := range raw {
		if _, known := guestKnownKeys[k]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if g.Extra == nil {
			g.Extra = make(map[string]any)
		}
		g.Extra[k] = val
	}
	return nil
}

// GuestStateFromDocument decodes a remote guest sub-document.
func GuestStateFromDocument(d Document) (GuestState, error) {
	var g GuestState
	if d == nil {
		return g, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return g, err
	}
	err = json.Unmarshal(b, &g)
	return g, err
}
