// Command coolcache-server is CoolCache's server entrypoint: it parses
// startup configuration, bootstraps structured logging, loads any existing
// RDB snapshot, opens the RESP listener (and, if configured, the operator
// HTTP surface and a replication leader/follower), then serves until an
// interrupt or termination signal requests a graceful shutdown: config,
// then logger, then listen, then serve, then shut down on signal.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"coolcache/internal/adminhttp"
	"coolcache/internal/config"
	"coolcache/internal/connio"
	"coolcache/internal/dispatch"
	"coolcache/internal/keyspace"
	"coolcache/internal/logging"
	"coolcache/internal/metrics"
	"coolcache/internal/pubsub"
	"coolcache/internal/replication"
	"coolcache/internal/resp"
	"coolcache/internal/snapshot"
	"coolcache/internal/streams"
)

const systemSampleInterval = 15 * time.Second

func main() {
	// A .env file is a development convenience; production deployments set
	// real environment variables and this is a no-op.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:], config.OSEnviron())
	if err != nil {
		fmt.Fprintln(os.Stderr, "coolcache-server:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "coolcache-server: logger init:", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal startup error", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	store := keyspace.NewStore()
	streamEngine := streams.NewEngine(store)
	hub := pubsub.NewHub(pubsub.DefaultSoftLimitBytes)

	mets := metrics.New()
	mets.RegisterKeyspaceSize(func() float64 { return float64(len(store.Keys("*"))) })

	rdbPath := filepath.Join(cfg.Dir, cfg.DBFilename)

	snapOpts := []snapshot.Option{snapshot.WithMetrics(mets)}
	if cfg.ArchiveCompress {
		archiver, err := snapshot.NewArchiver(cfg.ArchiveCodec, cfg.ArchiveRateLimitBytes)
		if err != nil {
			return err
		}
		snapOpts = append(snapOpts, snapshot.WithArchiveCompressor(archiver))
	}
	if cfg.SaveCron != "" {
		snapOpts = append(snapOpts, snapshot.WithCronSchedule(cfg.SaveCron))
	}
	snap, err := snapshot.NewManager(store, rdbPath, toSnapshotSchedule(cfg.SaveSchedule), logger, snapOpts...)
	if err != nil {
		return fmt.Errorf("constructing snapshot manager: %w", err)
	}
	defer snap.Close()

	if err := snap.Load(); err != nil {
		return fmt.Errorf("loading %s: %w", rdbPath, err)
	}

	var leader *replication.Leader
	if cfg.ReplicaOf == nil {
		leader = replication.NewLeader(cfg.ReplBacklogBytes, snap.DumpBytes)
		mets.RegisterReplication(
			func() float64 { return float64(leader.Offset()) },
			func() float64 { return float64(leader.ConnectedReplicas()) },
		)
	}

	startedAt := time.Now()
	deps := dispatch.Deps{
		Store:     store,
		Streams:   streamEngine,
		PubSub:    hub,
		Snapshot:  snap,
		Leader:    leader,
		Config:    cfg,
		Metrics:   mets,
		StartedAt: startedAt,
		NowMs:     func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
	dispatcher := dispatch.New(deps, logger)

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding port %d: %w", cfg.Port, err)
	}
	logger.Info("listening", logging.Int("port", cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mets.RunSampler(ctx, systemSampleInterval)
	go acceptLoop(ctx, ln, dispatcher, hub, leader, mets, logger)

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = startAdminHTTP(cfg, store, snap, leader, mets, startedAt, logger)
	}

	if cfg.ReplicaOf != nil {
		startFollower(ctx, cfg, dispatcher, snap, logger)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, closing listener")
	_ = ln.Close()
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, dispatcher *dispatch.Dispatcher, hub *pubsub.Hub, leader *replication.Leader, mets *metrics.Metrics, logger *logging.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", logging.Error(err))
			continue
		}
		loop := connio.New(conn, uuid.NewString(), dispatcher, hub, leader, logger)
		loop.SetMetrics(mets)
		go loop.Serve()
	}
}

func startAdminHTTP(cfg *config.Config, store *keyspace.Store, snap *snapshot.Manager, leader *replication.Leader, mets *metrics.Metrics, startedAt time.Time, logger *logging.Logger) *http.Server {
	limiter := adminhttp.NewBGSaveLimiter(
		time.Duration(cfg.AdminRateLimitWindowSeconds)*time.Second,
		cfg.AdminRateLimitBurst,
		nil,
	)
	handlers := adminhttp.NewHandlerSet(adminhttp.Options{
		Logger:      logger,
		Store:       store,
		Snapshot:    snap,
		Leader:      leader,
		Metrics:     mets,
		StartedAt:   startedAt,
		AdminToken:  cfg.AdminToken,
		RateLimiter: limiter,
	})
	mux := http.NewServeMux()
	handlers.Register(mux)
	srv := &http.Server{Addr: cfg.AdminAddr, Handler: logging.HTTPTraceMiddleware(logger)(mux)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server stopped", logging.Error(err))
		}
	}()
	logger.Info("admin http surface listening", logging.String("addr", cfg.AdminAddr))
	return srv
}

// startFollower wires a replication.Follower's Run loop to this process's
// own dispatcher: ApplyFunc replays each replicated write against an
// Inbound-mode Conn so it mutates the keyspace without producing a reply,
// and LoadRDBFunc hands the initial full-resync payload to the same
// snapshot.Manager SAVE/BGSAVE use.
func startFollower(ctx context.Context, cfg *config.Config, dispatcher *dispatch.Dispatcher, snap *snapshot.Manager, logger *logging.Logger) {
	inboundConn := &dispatch.Conn{ID: "replication-inbound", Mode: dispatch.ModeNormal, Inbound: true}
	apply := func(frame *resp.Frame) {
		dispatcher.Execute(inboundConn, frame)
	}
	follower := replication.NewFollower(cfg.ReplicaOf.Host, cfg.ReplicaOf.Port, cfg.Port, apply, snap.LoadBytes, logger)
	go follower.Run(ctx)
	logger.Info("replicating from leader",
		logging.String("host", cfg.ReplicaOf.Host),
		logging.Int("port", cfg.ReplicaOf.Port))
}

func toSnapshotSchedule(points []config.SavePoint) []snapshot.SavePoint {
	out := make([]snapshot.SavePoint, len(points))
	for i, p := range points {
		out[i] = snapshot.SavePoint{Seconds: p.Seconds, Changes: int64(p.Changes)}
	}
	return out
}
