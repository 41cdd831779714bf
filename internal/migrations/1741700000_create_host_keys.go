package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Create host_keys: the persistent cache internal/hostkey.PocketBaseStore
// checks against spec.md §4.6's MATCH/ABSENT/MISMATCH decision, one row per
// (host, port, keytype).
func init() {
	m.Register(func(app core.App) error {
		col := core.NewBaseCollection("host_keys")

		col.ListRule = nil // superuser only
		col.ViewRule = nil
		col.CreateRule = nil
		col.UpdateRule = nil
		col.DeleteRule = nil

		col.Fields.Add(&core.TextField{Name: "host", Required: true})
		col.Fields.Add(&core.NumberField{Name: "port", Required: true})
		col.Fields.Add(&core.TextField{Name: "keytype", Required: true})
		col.Fields.Add(&core.TextField{Name: "keystring", Required: true})

		col.Indexes = []string{
			"CREATE UNIQUE INDEX idx_host_keys_identity ON host_keys (host, port, keytype)",
		}

		return app.Save(col)
	}, func(app core.App) error {
		col, err := app.FindCollectionByNameOrId("host_keys")
		if err != nil {
			return nil
		}
		return app.Delete(col)
	})
}
