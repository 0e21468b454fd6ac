package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Selection holds one or more tool types chosen for a question. The wire
// format is polymorphic: a single selection marshals as a plain string, a
// multi selection as an array. Both forms unmarshal.
type Selection struct {
	types []Type
}

// NewSelection builds a Selection from the given types, dropping duplicates
// while preserving order.
func NewSelection(ts ...Type) Selection {
	seen := make(map[Type]bool, len(ts))
	out := make([]Type, 0, len(ts))
	for _, t := range ts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return Selection{types: out}
}

// ParseSelection parses raw string values (display or legacy form) into a
// Selection. Any unknown value fails the whole parse.
func ParseSelection(values ...string) (Selection, error) {
	out := make([]Type, 0, len(values))
	for _, v := range values {
		t, err := Parse(v)
		if err != nil {
			return Selection{}, fmt.Errorf("%w: %q", ErrUnknownType, v)
		}
		out = append(out, t)
	}
	return NewSelection(out...), nil
}

// IsZero reports whether no tool has been selected.
func (s Selection) IsZero() bool { return len(s.types) == 0 }

// Single reports whether exactly one tool is selected.
func (s Selection) Single() bool { return len(s.types) == 1 }

// Types returns the selected tools in order.
func (s Selection) Types() []Type {
	return append([]Type(nil), s.types...)
}

// Primary returns the first selected tool, or "" when empty.
func (s Selection) Primary() Type {
	if len(s.types) == 0 {
		return ""
	}
	return s.types[0]
}

// Contains reports whether t is part of the selection.
func (s Selection) Contains(t Type) bool {
	for _, have := range s.types {
		if have == t {
			return true
		}
	}
	return false
}

func (s Selection) String() string {
	parts := make([]string, len(s.types))
	for i, t := range s.types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON emits a string for single selections and an array otherwise.
// Consumers of the API depend on this exact shape.
func (s Selection) MarshalJSON() ([]byte, error) {
	switch len(s.types) {
	case 0:
		return []byte(`""`), nil
	case 1:
		return json.Marshal(string(s.types[0]))
	default:
		return json.Marshal(s.types)
	}
}

// UnmarshalJSON accepts a string, an array of strings, or null. Legacy
// identifiers are mapped to display names during decoding.
func (s *Selection) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = Selection{}
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var raw []string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		sel, err := ParseSelection(raw...)
		if err != nil {
			return err
		}
		*s = sel
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if strings.TrimSpace(one) == "" {
		*s = Selection{}
		return nil
	}
	sel, err := ParseSelection(one)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}

// Encode renders the selection for a text column: the display name for a
// single selection, a JSON array for a multi selection, "" when empty.
func (s Selection) Encode() string {
	switch len(s.types) {
	case 0:
		return ""
	case 1:
		return string(s.types[0])
	default:
		b, _ := json.Marshal(s.types)
		return string(b)
	}
}

// DecodeSelection is the inverse of Encode. It also accepts legacy
// identifiers written by older rows.
func DecodeSelection(raw string) (Selection, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Selection{}, nil
	}
	if strings.HasPrefix(v, "[") {
		var parts []string
		if err := json.Unmarshal([]byte(v), &parts); err != nil {
			return Selection{}, err
		}
		return ParseSelection(parts...)
	}
	return ParseSelection(v)
}
