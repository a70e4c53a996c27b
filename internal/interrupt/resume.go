// ABOUTME: ResumePayload, the continuation value handed back to a paused runtime
// ABOUTME: Serializes as a bare boolean or as an object of interrupt ID to boolean

package interrupt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// ResumePayload carries approval decisions into a paused runtime.
// The zero value carries no decision.
type ResumePayload struct {
	all  *bool
	byID map[string]bool
}

// ResumeAll returns a payload applying decision to the single pending interrupt.
func ResumeAll(decision bool) ResumePayload {
	return ResumePayload{all: &decision}
}

// ResumeEach returns a payload carrying one decision per interrupt ID.
func ResumeEach(decisions map[string]bool) ResumePayload {
	return ResumePayload{byID: maps.Clone(decisions)}
}

// IsMapping reports whether the payload is keyed by interrupt ID.
func (p ResumePayload) IsMapping() bool {
	return p.byID != nil
}

// IsZero reports whether the payload carries no decision at all.
func (p ResumePayload) IsZero() bool {
	return p.all == nil && p.byID == nil
}

// Bool returns the bare decision, if the payload is not a mapping.
func (p ResumePayload) Bool() (bool, bool) {
	if p.all == nil {
		return false, false
	}
	return *p.all, true
}

// Decisions returns a copy of the per-interrupt decisions.
func (p ResumePayload) Decisions() map[string]bool {
	return maps.Clone(p.byID)
}

// DecisionFor returns the decision for the given interrupt. A bare boolean
// answers for any interrupt.
func (p ResumePayload) DecisionFor(interruptID string) (bool, bool) {
	if p.byID != nil {
		v, ok := p.byID[interruptID]
		return v, ok
	}
	return p.Bool()
}

// MarshalJSON encodes the payload as true/false or {"id": bool, ...}.
func (p ResumePayload) MarshalJSON() ([]byte, error) {
	switch {
	case p.byID != nil:
		return json.Marshal(p.byID)
	case p.all != nil:
		return json.Marshal(*p.all)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a boolean, an object of booleans or null.
func (p *ResumePayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = ResumePayload{}

	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '{':
		var m map[string]bool
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decoding resume mapping: %w", err)
		}
		p.byID = m
		return nil
	default:
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decoding resume decision: %w", err)
		}
		p.all = &b
		return nil
	}
}
