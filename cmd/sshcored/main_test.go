package main

import (
	"testing"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/rs/zerolog"

	"github.com/websoft9/sshcore/internal/config"
	"github.com/websoft9/sshcore/internal/connwork"
	"github.com/websoft9/sshcore/internal/looppipe"

	_ "github.com/websoft9/sshcore/internal/migrations"
)

func TestNewConnectionWiresAuditAndRportfwd(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	sched := connwork.New("localhost:6379", zerolog.Nop())
	hookA, _ := looppipe.NewPair()
	cfg := &config.Config{OurMaxPkt: 0x8000}

	conn := newConnection(app, sched, cfg, hookA)
	if conn == nil {
		t.Fatal("expected a non-nil Connection")
	}
	if conn.Rportfwds == nil {
		t.Fatal("expected Rportfwds to be wired")
	}

	conn.Disconnect("test teardown")
	if !hookA.Disconnected {
		t.Fatal("expected Disconnect to reach the BPP hook")
	}

	rec, err := app.FindFirstRecordByFilter("audit_logs", "user_id = {:id}", dbx.Params{"id": conn.ID})
	if err != nil {
		t.Fatalf("expected an audit_logs record for the disconnect: %v", err)
	}
	if rec.GetString("action") != "connection.disconnect" {
		t.Fatalf("expected action connection.disconnect, got %q", rec.GetString("action"))
	}
}

func TestHostKeyStoreFactory(t *testing.T) {
	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatal(err)
	}
	defer app.Cleanup()

	if hostKeyStore(app) == nil {
		t.Fatal("expected a non-nil Store")
	}
}
