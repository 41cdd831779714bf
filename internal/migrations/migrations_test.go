package migrations_test

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	// trigger init() registrations
	_ "github.com/websoft9/sshcore/internal/migrations"
)

func TestAuditLogsCollectionFields(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("audit_logs")
	if err != nil {
		t.Fatal(err)
	}
	if col.Type != core.CollectionTypeBase {
		t.Errorf("expected base collection, got %q", col.Type)
	}

	assertFieldExists(t, col, "user_id", core.FieldTypeText, true)
	assertFieldExists(t, col, "action", core.FieldTypeText, true)
	assertFieldExists(t, col, "status", core.FieldTypeSelect, true)
	assertFieldExists(t, col, "ip", core.FieldTypeText, false)
	assertFieldExists(t, col, "detail", core.FieldTypeJSON, false)
}

func TestHostKeysCollectionFields(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	col, err := app.FindCollectionByNameOrId("host_keys")
	if err != nil {
		t.Fatal(err)
	}
	if col.Type != core.CollectionTypeBase {
		t.Errorf("expected base collection, got %q", col.Type)
	}

	assertFieldExists(t, col, "host", core.FieldTypeText, true)
	assertFieldExists(t, col, "port", core.FieldTypeNumber, true)
	assertFieldExists(t, col, "keytype", core.FieldTypeText, true)
	assertFieldExists(t, col, "keystring", core.FieldTypeText, true)
}

func assertFieldExists(t *testing.T, col *core.Collection, name, fieldType string, required bool) {
	t.Helper()
	f := col.Fields.GetByName(name)
	if f == nil {
		t.Errorf("collection %q: field %q not found", col.Name, name)
		return
	}
	if f.Type() != fieldType {
		t.Errorf("collection %q.%s: expected type %q, got %q", col.Name, name, fieldType, f.Type())
	}
	var got bool
	switch tf := f.(type) {
	case *core.TextField:
		got = tf.Required
	case *core.NumberField:
		got = tf.Required
	case *core.SelectField:
		got = tf.Required
	case *core.JSONField:
		got = tf.Required
	}
	if got != required {
		t.Errorf("collection %q.%s: expected required=%v, got %v", col.Name, name, required, got)
	}
}
