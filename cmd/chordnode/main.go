// Command chordnode runs a single peer of the overlay: it binds the gRPC
// ChordService, starts the stabilization and finger-fixing loops, and
// serves the read-only HTTP/WebSocket inspection API, wiring together the
// internal/* packages the way the teacher's cmd/torus wired its own
// flag-based entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/ringkeeper/chordkeep/internal/api"
	"github.com/ringkeeper/chordkeep/internal/chordstate"
	"github.com/ringkeeper/chordkeep/internal/config"
	"github.com/ringkeeper/chordkeep/internal/fingers"
	"github.com/ringkeeper/chordkeep/internal/logging"
	"github.com/ringkeeper/chordkeep/internal/node"
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
	"github.com/ringkeeper/chordkeep/internal/stabilizer"
	"github.com/ringkeeper/chordkeep/internal/storage"
	"github.com/ringkeeper/chordkeep/internal/supervisor"
	"github.com/ringkeeper/chordkeep/internal/transport"
)

func main() {
	defaults := config.DefaultConfig()

	host := flag.String("host", defaults.Host, "Host address to bind to")
	port := flag.Int("port", defaults.Port, "Port for the Chord gRPC server")
	httpPort := flag.Int("http-port", defaults.HTTPPort, "Port for the HTTP inspection API")
	bootstrap := flag.String("bootstrap", "", "Bootstrap node address (host:port) to join an existing ring")
	successors := flag.Int("r", defaults.SuccessorListSize, "Successor list size (also -successors)")
	flag.IntVar(successors, "successors", defaults.SuccessorListSize, "Successor list size")
	stabilizeInterval := flag.Duration("ts", defaults.StabilizeInterval, "Stabilization interval (also -stabilize-interval)")
	flag.DurationVar(stabilizeInterval, "stabilize-interval", defaults.StabilizeInterval, "Stabilization interval")
	fixFingersInterval := flag.Duration("tff", defaults.FixFingersInterval, "Finger-fixing interval (also -fix-fingers-interval)")
	flag.DurationVar(fixFingersInterval, "fix-fingers-interval", defaults.FixFingersInterval, "Finger-fixing interval")
	checkPredecessorInterval := flag.Duration("tcp", defaults.CheckPredecessorInterval, "Liveness sweep interval (also -check-predecessor-interval)")
	flag.DurationVar(checkPredecessorInterval, "check-predecessor-interval", defaults.CheckPredecessorInterval, "Liveness sweep interval")
	authToken := flag.String("auth-token", "", "Shared token required on every RPC; empty disables the check")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format (json, console)")
	flag.Parse()

	cfg := &config.Config{
		Host:                     *host,
		Port:                     *port,
		HTTPPort:                 *httpPort,
		M:                        ringid.Bits,
		StabilizeInterval:        *stabilizeInterval,
		FixFingersInterval:       *fixFingersInterval,
		CheckPredecessorInterval: *checkPredecessorInterval,
		SuccessorListSize:        *successors,
		RPCTimeout:               defaults.RPCTimeout,
		AuthToken:                *authToken,
		LogLevel:                 *logLevel,
		LogFormat:                *logFormat,
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Int("http_port", cfg.HTTPPort).Msg("starting chordnode")

	self := peer.FromHostPort(cfg.Host, cfg.Port)

	store := storage.NewMemory(30 * time.Second)
	httpServer := api.NewServer(api.Config{HTTPPort: cfg.HTTPPort}, nil, store, logger)
	dial := transport.NewClient(logger, cfg.AuthToken)

	watch := supervisor.New(dial, supervisor.Config{
		SweepInterval: cfg.CheckPredecessorInterval,
		ProbeTimeout:  cfg.RPCTimeout,
		MaxMisses:     2,
	}, httpServer.WebSocketHub(), logger)

	cell := chordstate.NewCell(chordstate.New(self, store, watch))

	timeouts := stabilizer.Timeouts{
		Liveness:   5 * time.Second,
		Structural: cfg.RPCTimeout,
		FindNode:   50 * time.Second,
		SetChunk:   10 * time.Second,
	}

	n := node.New(cell, dial, watch, timeouts, cfg.StabilizeInterval, logger)
	httpServer.SetProvider(n)

	var interceptors []grpc.UnaryServerInterceptor
	if cfg.AuthToken != "" {
		interceptors = append(interceptors, transport.AuthInterceptor(cfg.AuthToken))
	}

	grpcAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	grpcServer, err := transport.NewServer(n, grpcAddr, logger, interceptors...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build gRPC server")
		os.Exit(1)
	}

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	if err := httpServer.Start(cfg.HTTPPort); err != nil {
		logger.Error().Err(err).Msg("failed to start http inspection server")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *bootstrap != "" {
		via := resolveBootstrap(*bootstrap)
		joinCtx, joinCancel := context.WithTimeout(ctx, cfg.RPCTimeout)
		err := n.Bootstrap(joinCtx, via)
		joinCancel()
		if err != nil {
			logger.Error().Err(err).Str("bootstrap", *bootstrap).Msg("failed to join ring, starting alone")
		} else {
			logger.Info().Str("bootstrap", *bootstrap).Msg("joined existing ring")
		}
	} else {
		logger.Info().Msg("no bootstrap address given, starting a new ring")
	}

	go n.Run(ctx)
	fingerLoop := fingers.New(cell, n, cfg.FixFingersInterval, ringid.Bits, logger)
	go fingerLoop.Run(ctx)

	logger.Info().Msg("chordnode is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	cancel()
	grpcServer.Stop()
	if err := httpServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping http server")
	}
	if err := dial.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing peer connections")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing local store")
	}

	logger.Info().Msg("chordnode shutdown complete")
}

func resolveBootstrap(addr string) peer.Address {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return peer.Address{}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return peer.Address{}
	}
	return peer.FromHostPort(host, port)
}
