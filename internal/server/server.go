// Package server orchestrates the gateway components: NATS transport,
// optional Postgres store, the managers, and the HTTP health endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-gateway/internal/config"
	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/bootstrap"
	"github.com/morezero/action-gateway/pkg/commsutil"
	"github.com/morezero/action-gateway/pkg/kvactions"
	"github.com/morezero/action-gateway/pkg/manager"
	"github.com/morezero/action-gateway/pkg/store"
	"github.com/morezero/action-gateway/pkg/sysactions"
)

const logPrefix = "server:server"

// Server is the action-gateway orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
}

// healthOutput is the /health response body.
type healthOutput struct {
	Status    string       `json:"status"`
	Checks    healthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

type healthChecks struct {
	Comms    bool `json:"comms"`
	Database bool `json:"database"`
}

// Run starts the gateway, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting action-gateway", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load the startup manifest
	manifest, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = manifest.SubjectPrefix
	}

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 3: Build managers. Registration completes here; the handler maps
	// are read-only once subscriptions start.
	var managers []manager.Dispatcher

	if manifest.Enabled(sysactions.ManagerName) {
		sysMgr, err := sysactions.NewManager(manifest.ProtocolVersion)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to build system manager: %w", logPrefix, err)
		}
		managers = append(managers, sysMgr)
	}

	if manifest.Enabled(kvactions.ManagerName) && cfg.DatabaseURL != "" {
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		kvMgr := kvactions.NewManager(store.NewKV(pool, manifest.KVTable))
		if err := kvMgr.Init(kvactions.InitSchema(ctx)); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - kv manager init: %w", logPrefix, err)
		}
		managers = append(managers, kvMgr)
	}

	if len(managers) == 0 {
		nc.Close()
		return fmt.Errorf("%s - no managers enabled", logPrefix)
	}

	// Step 4: Subscribe each manager on its own subject
	var subs []*comms.Subscription
	cleanup := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		if s.pool != nil {
			s.pool.Close()
		}
		nc.Close()
	}

	for _, mgr := range managers {
		subject := manifest.Subject(mgr.Name())
		if subject == "" {
			subject = commsutil.BuildActionSubject(subjectPrefix, mgr.Name())
		}
		sub, err := SubscribeDispatch(nc, subject, mgr.Dispatch)
		if err != nil {
			cleanup()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
		}
		subs = append(subs, sub)
		slog.Info(fmt.Sprintf("%s - Manager [%s] subscribed to %s", logPrefix, mgr.Name(), subject))
	}

	// Step 5: Subscribe the combined dispatch subject; the router chains all
	// managers over one envelope.
	router := NewRouter(managers...)
	dispatchSubject := commsutil.BuildActionSubject(subjectPrefix, "dispatch")
	dispatchSub, err := SubscribeDispatch(nc, dispatchSubject, router.Route)
	if err != nil {
		cleanup()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, dispatchSubject, err)
	}
	subs = append(subs, dispatchSub)
	slog.Info(fmt.Sprintf("%s - Router subscribed to %s", logPrefix, dispatchSubject))

	// Step 6: Start HTTP health server
	healthTimeout := cfg.HealthCheckTimeout
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		h := s.health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Action-gateway is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	s.httpServer.Shutdown(ctx)
	nc.Drain()
	if s.pool != nil {
		s.pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// SubscribeDispatch binds a dispatch function to a COMMS subject: each
// message is decoded into an envelope, dispatched, and answered with the
// reply projection.
func SubscribeDispatch(nc *comms.Conn, subject string, dispatch func(*action.Action)) (*comms.Subscription, error) {
	return nc.Subscribe(subject, handleEnvelope(dispatch))
}

// handleEnvelope decodes an envelope from the wire, runs the given dispatch
// function against it, and replies with the reply projection. Decode failures
// reply with a synthesized server-error envelope.
func handleEnvelope(dispatch func(*action.Action)) comms.MsgHandler {
	return func(msg *comms.Msg) {
		act, err := action.FromBytes(msg.Data)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			respond(msg, action.ServerError(action.ActionError{
				Code:    "DecodeError",
				Message: "Failed to decode request",
			}))
			return
		}
		dispatch(act)
		respond(msg, act)
	}
}

func respond(msg *comms.Msg, act *action.Action) {
	data, err := commsutil.EncodePayload(act.IntoReply())
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to send reply: %v", logPrefix, err))
	}
}

func (s *Server) health(ctx context.Context) *healthOutput {
	commsOk := s.nc != nil && s.nc.IsConnected()

	dbOk := true
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			dbOk = false
		}
	}

	status := "healthy"
	if !commsOk || !dbOk {
		status = "unhealthy"
	}
	return &healthOutput{
		Status:    status,
		Checks:    healthChecks{Comms: commsOk, Database: dbOk},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
