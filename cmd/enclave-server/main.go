// Package main is the enclave-server entrypoint: it wires configuration,
// logging, metrics, the entropy source, the attestor, the session store,
// the handshake engine, the payload gate, and the RPC transport into a
// running process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selfxyz/tee-prover-server/config"
	"github.com/selfxyz/tee-prover-server/core/dispatch"
	"github.com/selfxyz/tee-prover-server/core/handshake"
	"github.com/selfxyz/tee-prover-server/core/session"
	"github.com/selfxyz/tee-prover-server/internal/logger"
	"github.com/selfxyz/tee-prover-server/pkg/rpc"
	"github.com/selfxyz/tee-prover-server/pkg/transport/websocket"
	"github.com/selfxyz/tee-prover-server/pkg/version"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "enclave-server",
	Short: "OpenPassport TEE prover server",
	Long: `enclave-server terminates the hybrid and legacy key-agreement handshakes,
decrypts submitted proof requests inside the enclave, and hands them to the
downstream proving pipeline over JSON-RPC 2.0 carried on WebSocket.`,
	RunE: runServer,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory containing environment config files")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "enclave-server: %v\n", err)
		os.Exit(1)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info("starting enclave-server",
		logger.String("version", version.Version),
		logger.String("environment", cfg.Environment),
		logger.String("deploy_policy", string(cfg.DeployPolicy)),
	)

	entropySource, err := buildEntropySource(cfg)
	if err != nil {
		return fmt.Errorf("build entropy source: %w", err)
	}
	attestor := buildAttestor(cfg)

	store := session.NewStore(cfg.Store.Capacity)
	catalog := dispatch.NewCatalog(cfg.Circuits)
	queue := dispatch.NewQueue(cfg.Queue.Capacity, cfg.Queue.SendTimeout)

	engine := handshake.NewEngine(store, attestor, entropySource, log)
	gate := dispatch.NewGate(store, catalog, queue, cfg.DeployPolicy, log)

	d := rpc.NewDispatcher()
	d.Handle("openpassport.health", newHealthMethod())
	engine.Register(d)
	gate.Register(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopConsumer := startStubConsumer(ctx, queue, log)
	defer stopConsumer()

	checker := buildChecker(store, attestor, queue)
	wsServer := websocket.NewWSServer(d)

	servers := startServers(cfg, log, wsServer, checker)
	defer servers.shutdown(log)

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight connections")
	return nil
}
