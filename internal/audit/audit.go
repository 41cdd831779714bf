// Package audit provides a unified helper for writing connection-lifecycle
// audit records: session established, disconnect reason, and host-key
// decision outcome (spec.md §4.3 termination, §4.6 host-key decision).
// Adapted from the teacher's audit.Write, which did the same thing for
// app-deployment operations against the same audit_logs collection shape.
package audit

import (
	"log"

	"github.com/pocketbase/pocketbase/core"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var validStatuses = map[string]bool{
	StatusPending: true,
	StatusSuccess: true,
	StatusFailed:  true,
}

// Entry holds all fields for a single audit record. A named struct avoids
// the swap-bug risk of several consecutive string parameters.
type Entry struct {
	// ConnID is internal/connection.Connection.ID, the actor for every
	// event this package records.
	ConnID string
	// Action is a dot-namespaced verb, e.g. "connection.disconnect",
	// "hostkey.decision".
	Action string
	// ResourceType/ResourceID/ResourceName describe what Action affected,
	// e.g. ("host", "example.com:22", "example.com").
	ResourceType string
	ResourceID   string
	ResourceName string
	// Status must be one of StatusPending, StatusSuccess, or StatusFailed.
	Status string
	// Detail holds optional structured context (disconnect reason, cache
	// status, fingerprint).
	Detail map[string]any
}

// Write persists one audit record to the audit_logs collection. It bypasses
// PocketBase access rules via app.Save(), so it works from any backend
// handler or Asynq worker. Errors are logged and swallowed — an audit
// failure must never break the connection it is describing.
func Write(app core.App, entry Entry) {
	if !validStatuses[entry.Status] {
		log.Printf("audit.Write: invalid status %q for action %q — skipping", entry.Status, entry.Action)
		return
	}

	col, err := app.FindCollectionByNameOrId("audit_logs")
	if err != nil {
		log.Printf("audit.Write: collection not found: %v", err)
		return
	}

	rec := core.NewRecord(col)
	rec.Set("user_id", entry.ConnID)
	rec.Set("action", entry.Action)
	rec.Set("resource_type", entry.ResourceType)
	rec.Set("resource_id", entry.ResourceID)
	rec.Set("resource_name", entry.ResourceName)
	rec.Set("status", entry.Status)
	if entry.Detail != nil {
		rec.Set("detail", entry.Detail)
	}

	if err := app.Save(rec); err != nil {
		log.Printf("audit.Write: save failed: %v", err)
	}
}

// ConnLogger implements connection.AuditLogger against a PocketBase app —
// the concrete logger internal/connection.Connection.SetAuditLogger binds.
type ConnLogger struct {
	App core.App
}

// LogDisconnect implements connection.AuditLogger.
func (c ConnLogger) LogDisconnect(connID, reason string) {
	Write(c.App, Entry{
		ConnID: connID,
		Action: "connection.disconnect",
		Status: StatusSuccess,
		Detail: map[string]any{"reason": reason},
	})
}
