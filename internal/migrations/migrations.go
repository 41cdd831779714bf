// Package migrations contains PocketBase Go migrations for the connection
// core's two persisted collections: audit_logs (internal/audit) and
// host_keys (internal/hostkey's cache, spec.md §4.6).
//
// All migration files use init() to register with the PocketBase migration runner.
// The package must be blank-imported in main.go:
//
//	_ "github.com/websoft9/sshcore/internal/migrations"
package migrations
