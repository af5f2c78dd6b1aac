package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/selfxyz/tee-prover-server/config"
	"github.com/selfxyz/tee-prover-server/core/dispatch"
	"github.com/selfxyz/tee-prover-server/core/session"
	"github.com/selfxyz/tee-prover-server/internal/attestation"
	"github.com/selfxyz/tee-prover-server/internal/entropy"
	"github.com/selfxyz/tee-prover-server/internal/health"
	"github.com/selfxyz/tee-prover-server/internal/logger"
	"github.com/selfxyz/tee-prover-server/internal/metrics"
	"github.com/selfxyz/tee-prover-server/pkg/rpc"
	"github.com/selfxyz/tee-prover-server/pkg/transport/websocket"
)

func buildLogger(cfg *config.Config) logger.Logger {
	level := logger.InfoLevel
	l := logger.NewDefaultLogger()
	if cfg.Logging != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = logger.DebugLevel
		case "warn":
			level = logger.WarnLevel
		case "error":
			level = logger.ErrorLevel
		}
		l.SetLevel(level)
	}
	return l
}

func buildEntropySource(cfg *config.Config) (entropy.Source, error) {
	if cfg.Entropy.Mode == "enclave" {
		return entropy.NewNitroSource(cfg.Entropy.DevicePath)
	}
	return entropy.SystemSource{}, nil
}

func buildAttestor(cfg *config.Config) attestation.Attestor {
	if cfg.Attestor.Mode == "enclave" {
		return attestation.NewHTTPAttestor(cfg.Attestor.SocketPath)
	}
	return attestation.MockAttestor{}
}

// newHealthMethod builds the openpassport.health JSON-RPC handler. The
// reference server answers with the literal string "OK"; richer
// component diagnostics are served separately over HTTP at /healthz.
func newHealthMethod() rpc.HandlerFunc {
	return func(_ json.RawMessage) (any, *rpc.Error) {
		return "OK", nil
	}
}

// buildChecker registers the component health checks exposed at
// /healthz: the session store is always reachable once constructed, the
// attestor and queue checks report degraded/unhealthy under load or
// sidecar failure.
func buildChecker(store *session.Store, attestor attestation.Attestor, queue *dispatch.Queue) *health.Checker {
	checker := health.NewChecker(2 * time.Second)

	checker.Register("store", func() health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusHealthy}
	})

	checker.Register("attestor", func() health.ComponentHealth {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := attestor.Attest(ctx, []string{"healthcheck"}); err != nil {
			return health.ComponentHealth{Status: health.StatusUnhealthy, Error: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusHealthy}
	})

	checker.Register("queue", func() health.ComponentHealth {
		if queue.Len() == queue.Cap() {
			return health.ComponentHealth{Status: health.StatusDegraded, Error: "downstream queue is full"}
		}
		return health.ComponentHealth{Status: health.StatusHealthy}
	})

	return checker
}

// startStubConsumer drains the dispatch queue, logging each job it
// receives. The real proof-generation pipeline downstream of this queue
// is out of scope for this service; this goroutine exists only so the
// bounded channel never fills up during local operation.
func startStubConsumer(ctx context.Context, queue *dispatch.Queue, log logger.Logger) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-queue.Jobs():
				log.Info("received proof request",
					logger.String("session_id", job.SessionID),
					logger.String("type", string(job.Request.Type)),
					logger.String("circuit", job.Request.Circuit.Name),
				)
			}
		}
	}()
	return func() { <-done }
}

type runningServers struct {
	rpcServer *http.Server
	opsServer *http.Server
	ws        *websocket.WSServer
}

// startServers starts the WebSocket/JSON-RPC listener and the metrics +
// health listener as background HTTP servers.
func startServers(cfg *config.Config, log logger.Logger, ws *websocket.WSServer, checker *health.Checker) *runningServers {
	rpcMux := http.NewServeMux()
	rpcMux.Handle("/ws", ws.Handler())
	rpcServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           rpcMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("rpc transport listening", logger.String("addr", cfg.ListenAddr))
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("rpc transport stopped", logger.Error(err))
		}
	}()

	healthServer := health.NewServer(checker, log, cfg.MetricsAddr)
	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", metrics.Handler())
	opsMux.Handle("/", healthServer.Handler())
	opsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics and health listening", logger.String("addr", cfg.MetricsAddr))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics/health server stopped", logger.Error(err))
		}
	}()

	return &runningServers{rpcServer: rpcServer, opsServer: opsServer, ws: ws}
}

func (s *runningServers) shutdown(log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.rpcServer.Shutdown(ctx); err != nil {
		log.Error("rpc transport shutdown error", logger.Error(err))
	}
	if err := s.opsServer.Shutdown(ctx); err != nil {
		log.Error("metrics/health shutdown error", logger.Error(err))
	}
	_ = s.ws.Close()
}
