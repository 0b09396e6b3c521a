package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/formdesigner/internal/types"
)

// Event types.
const (
	FormCreated              = "form.created"
	FormSaved                = "form.saved"
	FormDeleted              = "form.deleted"
	FormImported             = "form.imported"
	FormSubmitted            = "form.submitted"
	WorkflowCreated          = "workflow.created"
	WorkflowTagsUpdated      = "workflow.tags_updated"
	WorkflowVersionAdded     = "workflow.version_added"
	WorkflowVersionActivated = "workflow.version_activated"
	WorkflowRemoved          = "workflow.removed"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	AffectedEntities []types.SourceRef
	Summary          string
	Category         string // "form", "workflow"
	Actor            string
	Payload          json.RawMessage
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newEvent(eventType, category, summary string, refs []types.SourceRef, payload any) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       time.Now(),
		AffectedEntities: refs,
		Summary:          summary,
		Category:         category,
		Payload:          mustJSON(payload),
	}
}

// ── Form events ──────────────────────────────────────────────────────────────

// FormSavedPayload carries event-specific data for FormCreated and FormSaved.
type FormSavedPayload struct {
	FormID     string `json:"form_id"`
	Name       string `json:"name"`
	FieldCount int    `json:"field_count"`
	Created    bool   `json:"created"`
}

func NewFormSaved(p FormSavedPayload) DomainEvent {
	refs := []types.SourceRef{{EntityType: "form", EntityID: p.FormID, Role: "subject"}}
	if p.Created {
		return newEvent(FormCreated, "form",
			fmt.Sprintf("Form %q created with %d fields", p.Name, p.FieldCount), refs, p)
	}
	return newEvent(FormSaved, "form",
		fmt.Sprintf("Form %q saved with %d fields", p.Name, p.FieldCount), refs, p)
}

// FormDeletedPayload carries event-specific data for FormDeleted.
type FormDeletedPayload struct {
	FormID string `json:"form_id"`
}

func NewFormDeleted(p FormDeletedPayload) DomainEvent {
	return newEvent(FormDeleted, "form",
		fmt.Sprintf("Form %s deleted", short(p.FormID)),
		[]types.SourceRef{{EntityType: "form", EntityID: p.FormID, Role: "subject"}}, p)
}

// FormImportedPayload carries event-specific data for FormImported.
type FormImportedPayload struct {
	FormID     string `json:"form_id"`
	Name       string `json:"name"`
	FieldCount int    `json:"field_count"`
}

func NewFormImported(p FormImportedPayload) DomainEvent {
	return newEvent(FormImported, "form",
		fmt.Sprintf("Form %q imported with %d fields", p.Name, p.FieldCount),
		[]types.SourceRef{{EntityType: "form", EntityID: p.FormID, Role: "subject"}}, p)
}

// FormSubmittedPayload carries event-specific data for FormSubmitted.
type FormSubmittedPayload struct {
	SubmissionID string         `json:"submission_id"`
	FormID       string         `json:"form_id"`
	Name         string         `json:"name"`
	Values       map[string]any `json:"values"`
}

func NewFormSubmitted(p FormSubmittedPayload) DomainEvent {
	if p.SubmissionID == "" {
		p.SubmissionID = newID()
	}
	return newEvent(FormSubmitted, "form",
		fmt.Sprintf("Form %q submitted", p.Name),
		[]types.SourceRef{
			{EntityType: "form", EntityID: p.FormID, Role: "subject"},
			{EntityType: "submission", EntityID: p.SubmissionID, Role: "related"},
		}, p)
}

// ── Workflow events ──────────────────────────────────────────────────────────

// WorkflowPayload carries event-specific data for workflow-level events.
type WorkflowPayload struct {
	WorkflowID  string   `json:"workflow_id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func workflowRefs(id string) []types.SourceRef {
	return []types.SourceRef{{EntityType: "workflow", EntityID: id, Role: "subject"}}
}

func NewWorkflowCreated(p WorkflowPayload) DomainEvent {
	return newEvent(WorkflowCreated, "workflow",
		fmt.Sprintf("Workflow %q created", p.Name), workflowRefs(p.WorkflowID), p)
}

func NewWorkflowTagsUpdated(p WorkflowPayload) DomainEvent {
	return newEvent(WorkflowTagsUpdated, "workflow",
		fmt.Sprintf("Workflow %q tagged %v", p.Name, p.Tags), workflowRefs(p.WorkflowID), p)
}

func NewWorkflowRemoved(p WorkflowPayload) DomainEvent {
	return newEvent(WorkflowRemoved, "workflow",
		fmt.Sprintf("Workflow %s removed", short(p.WorkflowID)), workflowRefs(p.WorkflowID), p)
}

// WorkflowVersionPayload carries event-specific data for version events.
type WorkflowVersionPayload struct {
	WorkflowID    string `json:"workflow_id"`
	VersionID     string `json:"version_id"`
	Label         string `json:"label"`
	FileName      string `json:"file_name,omitempty"`
	FileSizeBytes int64  `json:"file_size_bytes,omitempty"`
	Active        bool   `json:"active"`
}

func versionRefs(p WorkflowVersionPayload) []types.SourceRef {
	return []types.SourceRef{
		{EntityType: "workflow", EntityID: p.WorkflowID, Role: "subject"},
		{EntityType: "workflow_version", EntityID: p.VersionID, Role: "target"},
	}
}

func NewWorkflowVersionAdded(p WorkflowVersionPayload) DomainEvent {
	return newEvent(WorkflowVersionAdded, "workflow",
		fmt.Sprintf("Version %q uploaded (%s, %d bytes)", p.Label, p.FileName, p.FileSizeBytes),
		versionRefs(p), p)
}

func NewWorkflowVersionActivated(p WorkflowVersionPayload) DomainEvent {
	return newEvent(WorkflowVersionActivated, "workflow",
		fmt.Sprintf("Version %q activated", p.Label), versionRefs(p), p)
}
