package main

import (
	"log"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/websoft9/sshcore/internal/audit"
	"github.com/websoft9/sshcore/internal/bpp"
	"github.com/websoft9/sshcore/internal/config"
	"github.com/websoft9/sshcore/internal/connection"
	"github.com/websoft9/sshcore/internal/connwork"
	"github.com/websoft9/sshcore/internal/hostkey"
	"github.com/websoft9/sshcore/internal/rportfwd"

	// Register the host_keys collection migration (spec.md §4.6's cache).
	_ "github.com/websoft9/sshcore/internal/migrations"
)

// main hosts the ambient services the connection-layer core depends on but
// does not itself implement (spec.md §1's "those layers sit below the BPP
// hook"): the PocketBase-backed host-key cache and the Asynq-backed
// deferred termination scheduler. A concrete transport (key exchange,
// ciphers, the actual listener) plugs in bpp.Hook implementations and
// constructs internal/connection.Connection per accepted session; that
// wiring is out of this core's scope (spec.md §1 Non-goals) and is not
// done here. Adapted from the teacher's cmd/appos/main.go PocketBase
// bootstrap and cmd/server/main.go's logger setup.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	setupLogger(cfg)

	app := pocketbase.New()

	sched := connwork.New(cfg.RedisAddr, zlog.Logger)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		sched.Start()
		zlog.Info().Str("redis_addr", cfg.RedisAddr).Msg("connwork: termination scheduler started")
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		sched.Shutdown()
		return e.Next()
	})

	if err := app.Start(); err != nil {
		zlog.Fatal().Err(err).Msg("sshcored: pocketbase app exited")
	}
}

// newConnection is the factory a concrete transport (key exchange, ciphers,
// the accepted socket's read/write loop — out of this core's scope per
// spec.md §1) calls once per accepted session, after it constructs a
// bpp.Hook over the decrypted packet stream. It wires the ambient services
// this binary hosts — the PocketBase host-key store, the audit trail, and
// the Asynq-backed termination scheduler — into a fresh Connection.
func newConnection(app core.App, sched *connwork.Scheduler, cfg *config.Config, hook bpp.Hook) *connection.Connection {
	conn := connection.New(hook, connection.Config{
		OurMaxPkt:      cfg.OurMaxPkt,
		SimpleMode:     cfg.SimpleMode,
		Batch:          cfg.Batch,
		ManualHostKeys: cfg.ManualHostKeys,
	}, zlog.Logger, sched)

	conn.SetAuditLogger(audit.ConnLogger{App: app})
	conn.Rportfwds = rportfwd.New()

	sched.Register(conn.ID, conn)
	return conn
}

// hostKeyStore returns the host-key cache a transport's pre-session
// verification step passes to hostkey.Decide, bound to the same app.
func hostKeyStore(app core.App) hostkey.Store {
	return hostkey.NewPocketBaseStore(app)
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
