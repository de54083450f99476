package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// RecordBuilder helps construct session records with fluent chaining for
// tests. Example:
//
//	rec := NewRecordBuilder("alice", "s1", "t1").Status(core.StatusRunning).Query("hi").Build()
type RecordBuilder struct {
	rec core.Record
}

// NewRecordBuilder creates a builder for the given triple. The record
// defaults to idle with the never-updated sentinel. Use chainable methods
// then call Build or MustJSON.
func NewRecordBuilder(userID, sessionID, taskID string) *RecordBuilder {
	return &RecordBuilder{rec: core.Record{
		UserID:      userID,
		SessionID:   sessionID,
		TaskID:      taskID,
		Status:      core.StatusIdle,
		LastUpdated: core.NeverUpdated,
	}}
}

// Status sets the record status (chainable).
func (b *RecordBuilder) Status(s core.Status) *RecordBuilder {
	b.rec.Status = s
	return b
}

// Query sets the last query (chainable).
func (b *RecordBuilder) Query(q string) *RecordBuilder {
	b.rec.LastQuery = q
	return b
}

// Response sets the last response payload (chainable).
func (b *RecordBuilder) Response(r *core.AgentResponse) *RecordBuilder {
	b.rec.LastResponse = r
	return b
}

// Updated sets the last-updated timestamp (chainable).
func (b *RecordBuilder) Updated(ts float64) *RecordBuilder {
	b.rec.LastUpdated = ts
	return b
}

// Build returns the assembled record.
func (b *RecordBuilder) Build() *core.Record {
	rec := b.rec
	return &rec
}

// MustJSON returns the record serialized the way the registry stores it,
// panicking on marshal failure.
func (b *RecordBuilder) MustJSON() string {
	data, err := json.Marshal(b.rec)
	if err != nil {
		panic(fmt.Sprintf("marshal record: %v", err))
	}
	return string(data)
}

// InterruptBuilder helps construct interrupt payloads for tests.
type InterruptBuilder struct {
	payload core.InterruptPayload
}

// NewInterruptBuilder creates a builder for an interrupt of the given type.
func NewInterruptBuilder(interruptType string) *InterruptBuilder {
	return &InterruptBuilder{payload: core.InterruptPayload{InterruptType: interruptType}}
}

// Description sets the human-readable description (chainable).
func (b *InterruptBuilder) Description(d string) *InterruptBuilder {
	b.payload.Description = d
	return b
}

// Action sets the pending action and its proposed arguments (chainable).
func (b *InterruptBuilder) Action(name string, args map[string]any) *InterruptBuilder {
	b.payload.ActionRequest = &core.ActionRequest{Action: name, Args: args}
	return b
}

// Build returns the assembled interrupt payload.
func (b *InterruptBuilder) Build() *core.InterruptPayload {
	payload := b.payload
	return &payload
}
