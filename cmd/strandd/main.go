// Command strandd is the orchestrator daemon: it loads configuration,
// wires the Store/Workspace/Scheduler/Cascade/Lifecycle/Hooks/Surface
// stack, exposes it over a JSON-RPC websocket, and runs the periodic
// kickoff/stale-session sweeps until told to stop. There is no
// interactive chat REPL, genesis wizard, or multi-provider agent
// registry here — one mode, one listener, one shutdown path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/basket/go-strand/internal/agentrole"
	"github.com/basket/go-strand/internal/cascade"
	"github.com/basket/go-strand/internal/config"
	"github.com/basket/go-strand/internal/cron"
	"github.com/basket/go-strand/internal/eventbus"
	"github.com/basket/go-strand/internal/gatewayclient"
	"github.com/basket/go-strand/internal/hooks"
	"github.com/basket/go-strand/internal/lifecycle"
	"github.com/basket/go-strand/internal/notify"
	orchotel "github.com/basket/go-strand/internal/otel"
	"github.com/basket/go-strand/internal/planparser"
	"github.com/basket/go-strand/internal/safety"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/store"
	"github.com/basket/go-strand/internal/surface"
	"github.com/basket/go-strand/internal/telemetry"
	"github.com/basket/go-strand/internal/transport/wsrpc"
	"github.com/basket/go-strand/internal/workspace"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=...".
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                          Start the orchestrator daemon

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  STRAND_HOME             Data directory (default: ~/.strand)
  STRAND_DATA_DIR         Store document directory override
  STRAND_WORKSPACES_DIR   Git workspaces directory override
  STRAND_BIND_ADDR        Websocket bind address override
  STRAND_GATEWAY_URL      External LLM gateway JSON-RPC endpoint
  STRAND_AUTH_TOKEN       Bearer token required on the websocket transport
  TELEGRAM_TOKEN          Telegram bot token for the push notifier
`)
}

func main() {
	flag.Usage = printUsage
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "fingerprint", cfg.Fingerprint())

	if host, _, err := net.SplitHostPort(cfg.BindAddr); err == nil {
		h := strings.TrimSpace(strings.ToLower(host))
		loopback := h == "127.0.0.1" || h == "localhost" || h == "::1"
		if !loopback && len(cfg.AllowOrigins) == 0 {
			logger.Warn("allow_origins is empty on non-loopback bind; cross-origin browser connections will be rejected", "bind_addr", cfg.BindAddr)
		}
	}

	eventBus := eventbus.New(logger, nil)

	otelProvider, err := orchotel.Init(ctx, orchotel.Config{
		Enabled:     cfg.Otel.Enabled,
		Endpoint:    cfg.Otel.OTLPEndpoint,
		ServiceName: cfg.Otel.ServiceName,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := orchotel.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS", err)
	}

	st, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer st.Close()
	logger.Info("startup phase", "phase", "store_opened", "dataDir", cfg.DataDir)

	replayLog, err := eventbus.OpenReplayLog(filepath.Join(cfg.DataDir, "kickoff-events.json"))
	if err != nil {
		fatalStartup(logger, "E_REPLAY_LOG_OPEN", err)
	}
	defer replayLog.Close()
	replayLog.Tap(eventBus, "goal.", func(err error) {
		logger.Warn("replay log write failed", "error", err)
	})

	var ws *workspace.Manager
	if cfg.WorkspacesDir != "" {
		ws = workspace.NewManager(cfg.WorkspacesDir, logger)
	} else {
		logger.Info("workspaces_dir not configured; git features (worktrees, push, merge) are disabled")
	}

	roles := agentrole.NewResolver("")
	parser := planparser.NewHeuristicParser()
	casc := cascade.NewProcessor(st, parser)

	gwClient := gatewayclient.New(cfg.GatewayURL, logger)
	if cfg.GatewayURL == "" {
		logger.Warn("gateway_url not configured; chat.send/history/abort and sessions.delete will fail fast")
	}

	sched := scheduler.New(st, roles, eventBus, logger)
	sched.RoleOverrides = cfg.AgentRoles
	sched.Tracer = otelProvider.Tracer
	sched.Metrics = metrics

	lc := lifecycle.New(st, gwClient, logger)

	hk := hooks.New(st, sched, casc, ws, gwClient, eventBus, logger)
	hk.Tracer = otelProvider.Tracer
	hk.Metrics = metrics
	hk.Sanitizer = safety.NewSanitizer()
	hk.LeakDetector = safety.NewLeakDetector()
	if cfg.Sandbox.Enabled {
		sb, err := workspace.NewSandbox(cfg.Sandbox.Image, cfg.Sandbox.MemoryMB)
		if err != nil {
			logger.Warn("sandbox enabled but docker client init failed; post-merge verification disabled", "error", err)
		} else {
			hk.Sandbox = sb
			hk.SandboxCommand = cfg.Sandbox.Command
		}
	}

	srf := surface.New(st, ws, casc, sched, lc, hk, eventBus, logger)

	rpcServer := wsrpc.New(wsrpc.Config{
		Surface:      srf,
		Events:       eventBus,
		AuthToken:    cfg.AuthToken,
		AllowOrigins: cfg.AllowOrigins,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: rpcServer.Handler(),
	}
	serverErr := make(chan error, 1)
	listenCfg := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
		},
	}
	ln, err := listenCfg.Listen(ctx, "tcp", cfg.BindAddr)
	if err != nil {
		if isAddrInUse(err) {
			fatalStartup(logger, "E_LISTENER_BIND", fmt.Errorf("%w\n\n  another process is using %s; stop it or change bind_addr in config.yaml", err, cfg.BindAddr))
		}
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	logger.Info("startup phase", "phase", "listener_bound", "addr", cfg.BindAddr)
	go func() {
		logger.Info("surface listening", "addr", cfg.BindAddr, "ws", "/ws")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	cronSched := cron.NewScheduler(cron.Config{
		Store:            st,
		Scheduler:        sched,
		Lifecycle:        lc,
		Logger:           logger,
		KickoffSweepCron: cfg.Cron.KickoffSweepCron,
		StaleSweepCron:   cfg.Cron.StaleSweepCron,
	})
	cronSched.Start(ctx)
	defer cronSched.Stop()
	logger.Info("startup phase", "phase", "cron_started")

	tg, err := notify.New(cfg.Telegram, eventBus, logger)
	if err != nil {
		logger.Warn("telegram notifier init failed; continuing without it", "error", err)
	} else if tg != nil {
		tg.Start(ctx)
		defer tg.Stop()
		logger.Info("startup phase", "phase", "telegram_notifier_started")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("surface server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr, `{"timestamp":"%s","level":"ERROR","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), reasonCode, message)
	}
	os.Exit(1)
}

func isAddrInUse(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}
