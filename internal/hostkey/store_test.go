package hostkey_test

import (
	"testing"

	"github.com/pocketbase/pocketbase/tests"

	"github.com/websoft9/sshcore/internal/hostkey"

	// trigger init() registration of the host_keys collection
	_ "github.com/websoft9/sshcore/internal/migrations"
)

func TestPocketBaseStoreCheckAndStore(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	store := hostkey.NewPocketBaseStore(app)

	status, err := store.Check("example.com", 22, "ssh-ed25519", "AAAA...")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != hostkey.StatusAbsent {
		t.Fatalf("expected StatusAbsent before Store, got %v", status)
	}

	if err := store.Store("example.com", 22, "ssh-ed25519", "AAAA..."); err != nil {
		t.Fatalf("Store: %v", err)
	}

	status, err = store.Check("example.com", 22, "ssh-ed25519", "AAAA...")
	if err != nil {
		t.Fatalf("Check after Store: %v", err)
	}
	if status != hostkey.StatusMatch {
		t.Fatalf("expected StatusMatch, got %v", status)
	}

	status, err = store.Check("example.com", 22, "ssh-ed25519", "BBBB-different")
	if err != nil {
		t.Fatalf("Check with different key: %v", err)
	}
	if status != hostkey.StatusMismatch {
		t.Fatalf("expected StatusMismatch, got %v", status)
	}
}
