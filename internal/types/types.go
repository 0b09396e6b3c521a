// Package types defines the value shapes shared by the schema, renderer,
// persistence and transport layers.
package types

import (
	"encoding/json"
	"time"
)

// Option is one choice of a select, radio, multiselect or checkbox-group field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Location is the value of a location field.
type Location struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
}

// IsZero reports whether neither country nor state is set.
func (l Location) IsZero() bool {
	return l.Country == "" && l.State == ""
}

// CreditCard is the value of a credit-card field. All five parts are strings.
type CreditCard struct {
	CardholderName string `json:"cardholderName"`
	CardNumber     string `json:"cardNumber"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CVV            string `json:"cvv"`
}

// Incomplete reports whether any of the five parts is blank.
func (c CreditCard) Incomplete() bool {
	return c.CardholderName == "" || c.CardNumber == "" ||
		c.ExpiryMonth == "" || c.ExpiryYear == "" || c.CVV == ""
}

// FileHandle describes one file selected in a file field. Only metadata is
// carried; the bytes stay with the upload layer.
type FileHandle struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// ContextInput declares a named external input exposed under $ctx.input.
// Type is one of string, number, boolean, object, array; ItemType applies to
// arrays only.
type ContextInput struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	ItemType string `json:"itemType,omitempty"`
}

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "related"
}

// ActivityEntry is one row of the audit feed, keyed by a referenced entity.
// One event produces one entry per affected entity.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "form", "workflow"
	Actor             string          `json:"actor,omitempty"`
	Payload           json.RawMessage `json:"payload"`
}
