package flow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result types a config-flow step can produce
type ResultType string

const (
	ResultTypeForm        ResultType = "form"
	ResultTypeCreateEntry ResultType = "create_entry"
	ResultTypeAbort       ResultType = "abort"
)

// Flow kinds
const (
	KindUser   = "user"
	KindReauth = "reauth"
)

// Common abort reasons
const (
	AbortAlreadyConfigured = "already_configured"
	AbortReauthSuccessful  = "reauth_successful"
	AbortCannotConnect     = "cannot_connect"
)

// ErrAlreadyConfigured is returned by SetUniqueID when another entry of the
// same domain already claimed the unique ID.
var ErrAlreadyConfigured = errors.New("already configured")

// ErrUnknownStep is returned when a handler has no step for the requested ID
var ErrUnknownStep = errors.New("unknown flow step")

// Field describes one input of a form step
type Field struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"` // "string", "password", "integer", "boolean"
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
}

// Result is the outcome of executing a flow step
type Result struct {
	Type         ResultType             `json:"type"`
	FlowID       string                 `json:"flow_id"`
	StepID       string                 `json:"step_id,omitempty"`
	Schema       []Field                `json:"schema,omitempty"`
	Errors       map[string]string      `json:"errors,omitempty"`
	Placeholders map[string]string      `json:"placeholders,omitempty"`
	Title        string                 `json:"title,omitempty"`
	Data         map[string]interface{} `json:"-"`
	Reason       string                 `json:"reason,omitempty"`
	EntryID      string                 `json:"entry_id,omitempty"`
}

// StepFunc executes one flow step. input is nil when the step is first shown
// and carries the submitted form values on the second pass.
type StepFunc func(ctx context.Context, f *Flow, input map[string]interface{}) (*Result, error)

// Handler supplies the steps of one integration's config flow. The step map
// must contain KindUser; KindReauth is optional.
type Handler interface {
	Domain() string
	Steps() map[string]StepFunc
}

// Flow is one in-progress configuration wizard instance
type Flow struct {
	ID            string                 `json:"flow_id"`
	Domain        string                 `json:"domain"`
	Kind          string                 `json:"kind"`
	CurrentStep   string                 `json:"step_id"`
	UniqueID      string                 `json:"-"`
	ReauthEntryID string                 `json:"-"`
	Context       map[string]interface{} `json:"-"`
	CreatedAt     time.Time              `json:"created_at"`

	manager *Manager
}

// SetUniqueID claims a unique ID for the flow. If another entry of the same
// domain already holds it the flow must abort with already_configured; reauth
// flows are exempt because they target the existing entry.
func (f *Flow) SetUniqueID(uniqueID string) error {
	f.UniqueID = uniqueID
	if f.Kind == KindReauth {
		return nil
	}
	if f.manager.hasEntry != nil && f.manager.hasEntry(f.Domain, uniqueID) {
		return fmt.Errorf("%w: %s/%s", ErrAlreadyConfigured, f.Domain, uniqueID)
	}
	return nil
}

// ShowForm produces a form result for the given step
func (f *Flow) ShowForm(stepID string, schema []Field, errs map[string]string) *Result {
	return &Result{
		Type:   ResultTypeForm,
		FlowID: f.ID,
		StepID: stepID,
		Schema: schema,
		Errors: errs,
	}
}

// ShowFormWithPlaceholders produces a form result carrying description
// placeholders (callback URLs and the like)
func (f *Flow) ShowFormWithPlaceholders(stepID string, schema []Field, errs map[string]string, placeholders map[string]string) *Result {
	r := f.ShowForm(stepID, schema, errs)
	r.Placeholders = placeholders
	return r
}

// CreateEntry produces a create-entry result; the manager finalizes it into a
// persisted config entry (or, for reauth flows, into an update of the
// existing entry).
func (f *Flow) CreateEntry(title string, data map[string]interface{}) *Result {
	return &Result{
		Type:   ResultTypeCreateEntry,
		FlowID: f.ID,
		Title:  title,
		Data:   data,
	}
}

// Abort terminates the flow with a reason
func (f *Flow) Abort(reason string) *Result {
	return &Result{
		Type:   ResultTypeAbort,
		FlowID: f.ID,
		Reason: reason,
	}
}
