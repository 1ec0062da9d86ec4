package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chuyangliu/dcell/internal/addressing"
	"github.com/chuyangliu/dcell/internal/config"
	"github.com/chuyangliu/dcell/internal/controlplane"
	"github.com/chuyangliu/dcell/internal/flowtable"
	"github.com/chuyangliu/dcell/internal/linkstate"
	"github.com/chuyangliu/dcell/internal/logger"
	zapfactory "github.com/chuyangliu/dcell/internal/logger/zap"
	"github.com/chuyangliu/dcell/internal/openflow"
	"github.com/chuyangliu/dcell/internal/router"
	"github.com/chuyangliu/dcell/internal/simnet"
	"github.com/chuyangliu/dcell/internal/switchsession"
	"github.com/chuyangliu/dcell/internal/telemetry"
)

var defaultConfigPath = "config/dcell/config.yaml"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	simulate := flag.Bool("simulate", false, "build every route against an in-memory flow table and trace each pair, without listening for real switches")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	// Validate configuration
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize logger
	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }() // flush logger buffers before exit
		lgr = zapfactory.NewAdapter(zapLog)  // adapt zap.Logger to logger.Logger
	} else {
		lgr = &logger.NopLogger{} // no-op logger
	}
	// Log loaded configuration at DEBUG level
	cfg.LogConfig(lgr)

	// Initialize the DCell geometry
	geom, err := addressing.NewGeometry(cfg.DCell.K, cfg.DCell.N)
	if err != nil {
		lgr.Error("failed to initialize DCell geometry", logger.F("err", err))
		os.Exit(1)
	}
	numHosts, numSwitches := geom.Counts()
	lgr = lgr.Named("controller")
	lgr.Info("DCell geometry initialized",
		logger.F("k", cfg.DCell.K), logger.F("n", cfg.DCell.N),
		logger.F("num_hosts", numHosts), logger.F("num_switches", numSwitches))

	// Initialize Telemetry (if enabled)
	shutdown := telemetry.InitTracer(cfg.Telemetry, "dcell-controller")
	defer shutdown(context.Background())

	// Initialize the flow-table mirror and link-health tracker
	flows := flowtable.New()
	links := linkstate.New()

	if *simulate {
		runSimulation(geom, flows, links, lgr)
		return
	}

	// Initialize the OpenFlow listener
	listener := openflow.NewListener(
		fmt.Sprintf(":%d", cfg.Controller.ListenPort),
		openflow.WithLogger(lgr.Named("openflow")),
	)

	// Initialize link discovery (heartbeat-based, driven by relayed LLDP
	// probes in a real deployment; this controller only consumes its
	// timeout-triggered LinkEvents)
	discovery := openflow.NewLinkDiscovery(cfg.DCell.LinkTimeout, lgr.Named("discovery"))

	// Initialize the ARP-answering packet handler
	session := switchsession.New(
		cfg.DCell.IPBase,
		listener,
		switchsession.WithLogger(lgr.Named("switchsession")),
	)

	// Initialize the control plane
	cp := controlplane.New(
		geom,
		flows,
		links,
		listener,
		session,
		controlplane.WithLogger(lgr.Named("controlplane")),
	)

	// Setup signal handler for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the listener, link discovery and control plane in background
	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.Serve(ctx) }()
	go discovery.Run(ctx, time.Now)
	go cp.Run(ctx, listener.Events(), discovery.Events())
	lgr.Info("dcell-controller started", logger.F("listen_port", cfg.Controller.ListenPort))

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping gracefully...")
	case err := <-serveErr:
		if err != nil {
			lgr.Error("openflow listener terminated unexpectedly", logger.F("err", err))
		}
		stop()
		os.Exit(1)
	}
}

// runSimulation builds every host-pair route against an in-memory flow
// table, with no real switches involved, then traces each pair through
// internal/simnet to confirm the installed entries actually deliver to
// the destination's own switch. It is the stand-in for the external
// emulator this controller otherwise has no way to drive.
func runSimulation(geom addressing.Geometry, flows *flowtable.FlowTable, links *linkstate.LinkState, lgr logger.Logger) {
	r := router.New(geom, links, flows, router.WithLogger(lgr))
	numHosts, _ := geom.Counts()
	ctx := context.Background()

	for i := 1; i <= numHosts; i++ {
		for j := i + 1; j <= numHosts; j++ {
			if err := r.BuildRoute(ctx, i, j); err != nil {
				lgr.Error("simulate: build_route failed", logger.F("src", i), logger.F("dst", j), logger.F("error", err.Error()))
				continue
			}
		}
	}

	failed := 0
	for i := 1; i <= numHosts; i++ {
		for j := 1; j <= numHosts; j++ {
			if i == j {
				continue
			}
			hops, err := simnet.TracePath(geom, flows, i, j)
			if err != nil {
				failed++
				lgr.Warn("simulate: trace failed", logger.F("src", i), logger.F("dst", j), logger.F("hops", len(hops)), logger.F("error", err.Error()))
			}
		}
	}

	if failed == 0 {
		lgr.Info("simulate: every host pair reaches its destination", logger.F("num_hosts", numHosts))
	} else {
		lgr.Error("simulate: some host pairs failed to reach their destination", logger.F("failed", failed))
		os.Exit(1)
	}
}
