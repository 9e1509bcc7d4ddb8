package storage

import (
	"encoding/json"
	"errors"
)

// ErrEmptyScope is returned by DeleteByOwner when no owner field is set.
var ErrEmptyScope = errors.New("storage: owner scope is empty")

// OptString is a string that may be absent. The zero value is absent,
// which is distinct from a present empty string.
type OptString struct {
	Value string
	Valid bool
}

// Some returns a present OptString holding v.
func Some(v string) OptString {
	return OptString{Value: v, Valid: true}
}

// None returns an absent OptString.
func None() OptString {
	return OptString{}
}

// Get returns the value and whether it is present.
func (o OptString) Get() (string, bool) {
	return o.Value, o.Valid
}

// Or returns the value when present and def otherwise.
func (o OptString) Or(def string) string {
	if !o.Valid {
		return def
	}
	return o.Value
}

// accepts reports whether a stored field satisfies o as a filter.
func (o OptString) accepts(stored OptString) bool {
	if !o.Valid {
		return true
	}
	return stored.Valid && stored.Value == o.Value
}

// MarshalJSON encodes an absent value as null.
func (o OptString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON decodes null as absent.
func (o *OptString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Some(s)
	return nil
}

// Scope identifies the owner of a memory. Used as a filter, an absent field
// places no restriction on that dimension.
type Scope struct {
	UserID  OptString `json:"user_id"`
	AgentID OptString `json:"agent_id"`
	RunID   OptString `json:"run_id"`
}

// IsEmpty reports whether no field of the scope is present.
func (s Scope) IsEmpty() bool {
	return !s.UserID.Valid && !s.AgentID.Valid && !s.RunID.Valid
}

// Matches reports whether a memory owned by stored falls within the filter s.
func (s Scope) Matches(stored Scope) bool {
	return s.UserID.accepts(stored.UserID) &&
		s.AgentID.accepts(stored.AgentID) &&
		s.RunID.accepts(stored.RunID)
}

// Fields returns the present fields keyed by column name.
func (s Scope) Fields() map[string]string {
	out := make(map[string]string, 3)
	if v, ok := s.UserID.Get(); ok {
		out["user_id"] = v
	}
	if v, ok := s.AgentID.Get(); ok {
		out["agent_id"] = v
	}
	if v, ok := s.RunID.Get(); ok {
		out["run_id"] = v
	}
	return out
}
