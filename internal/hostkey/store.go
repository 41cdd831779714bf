package hostkey

import (
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// PocketBaseStore is the concrete Store backing the host-key cache with the
// "host_keys" PocketBase collection (fields: host, port, keytype,
// keystring), adapted from internal/settings's find-then-update/create
// upsert pattern.
type PocketBaseStore struct {
	App core.App
}

// NewPocketBaseStore returns a Store bound to app.
func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{App: app}
}

// Check implements Store: MATCH on an exact keystring match, MISMATCH when a
// row exists for (host, port, keytype) with a different keystring, ABSENT
// when no row exists.
func (s *PocketBaseStore) Check(host string, port int, keytype, keystring string) (CacheStatus, error) {
	record, err := s.App.FindFirstRecordByFilter(
		"host_keys",
		"host = {:host} && port = {:port} && keytype = {:keytype}",
		dbx.Params{"host": host, "port": port, "keytype": keytype},
	)
	if err != nil {
		return StatusAbsent, nil
	}
	if record.GetString("keystring") == keystring {
		return StatusMatch, nil
	}
	return StatusMismatch, nil
}

// Store implements Store: upserts the (host, port, keytype) row with
// keystring.
func (s *PocketBaseStore) Store(host string, port int, keytype, keystring string) error {
	record, err := s.App.FindFirstRecordByFilter(
		"host_keys",
		"host = {:host} && port = {:port} && keytype = {:keytype}",
		dbx.Params{"host": host, "port": port, "keytype": keytype},
	)
	if err != nil {
		collection, colErr := s.App.FindCollectionByNameOrId("host_keys")
		if colErr != nil {
			return fmt.Errorf("hostkey: find collection: %w", colErr)
		}
		record = core.NewRecord(collection)
		record.Set("host", host)
		record.Set("port", port)
		record.Set("keytype", keytype)
	}
	record.Set("keystring", keystring)
	if err := s.App.Save(record); err != nil {
		return fmt.Errorf("hostkey: save: %w", err)
	}
	return nil
}
