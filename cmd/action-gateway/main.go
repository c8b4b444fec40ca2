// Package main is the entrypoint for the action-gateway binary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/morezero/action-gateway/internal/config"
	"github.com/morezero/action-gateway/internal/server"
	"github.com/morezero/action-gateway/pkg/bootstrap"
	"github.com/morezero/action-gateway/pkg/store"
)

const usage = `Usage: action-gateway [command]
       action-gateway serve       Start the gateway (NATS transport, managers, HTTP health).
       action-gateway ensure-db   Create the kv table for the configured DATABASE_URL.

Commands:
  serve       (default) Start the action gateway.
  ensure-db   Ensure the key/value schema exists, then exit.

Environment: COMMS_URL, DATABASE_URL (required for ensure-db and the kv manager),
GATEWAY_MANIFEST_FILE, GATEWAY_SUBJECT_PREFIX, HTTP_PORT, LOG_LEVEL. See README.
`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 && os.Args[1] != "" {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		if err := server.Run(); err != nil {
			log.Fatalf("action-gateway serve: %v", err)
		}
	case "ensure-db":
		if err := runEnsureDB(); err != nil {
			log.Fatalf("action-gateway ensure-db: %v", err)
		}
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "action-gateway: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func runEnsureDB() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}

	manifest, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	kv := store.NewKV(pool, manifest.KVTable)
	if err := kv.EnsureSchema(ctx); err != nil {
		return err
	}

	fmt.Println("action-gateway: kv schema ready")
	return nil
}
