package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AmbrSb/LServer/internal/config"
	"github.com/AmbrSb/LServer/internal/controlplane"
	"github.com/AmbrSb/LServer/internal/httpproto"
	"github.com/AmbrSb/LServer/internal/metrics"
	"github.com/AmbrSb/LServer/internal/session"
	"github.com/AmbrSb/LServer/internal/stats"
	"github.com/AmbrSb/LServer/internal/vm"
	"github.com/AmbrSb/LServer/internal/vscript"
	"github.com/AmbrSb/LServer/server"
)

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the LServer listener and control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func httpProtocolFactory(log *slog.Logger) server.ProtocolFactory {
	return func(sessionID uint64, sessionStats *stats.SessionStats, v *vm.VM, pools *vscript.OpPools) session.Protocol {
		return httpproto.New(v, pools, sessionStats, log, sessionID)
	}
}

func serve(configPath string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	loader, err := config.Load(configPath, log)
	if err != nil {
		return badConfig(err)
	}
	cfg := loader.Current()

	manager := server.NewManager()
	srvCfg := server.Config{
		ListenIP:                 cfg.Listen.IP,
		ListenPort:               cfg.Listen.Port,
		ReuseAddress:             cfg.Listen.ReuseAddress,
		SeparateAcceptorThread:   cfg.Listen.SeparateAcceptorThread,
		SocketCloseLinger:        cfg.Networking.SocketCloseLinger,
		SocketCloseLingerTimeout: cfg.Networking.SocketCloseLingerTimeout,
		NumWorkers:               cfg.Concurrency.NumWorkers,
		MaxNumWorkers:            cfg.Concurrency.MaxNumWorkers,
		NumThreadsPerWorker:      cfg.Concurrency.NumThreadsPerWorker,
		StrandPoolSize:           cfg.Concurrency.NumThreadsPerWorker,
		MaxSessionPoolSize:       cfg.Sessions.MaxSessionPoolSize,
		MaxTransferSize:          cfg.Sessions.MaxTransferSize,
		EagerSessionPool:         cfg.Sessions.EagerSessionPool,
	}

	handle, _, err := manager.CreateServer(srvCfg, httpProtocolFactory(log))
	if err != nil {
		return runtimeFailure(fmt.Errorf("start listener: %w", err))
	}
	log.Info("listening", "server_id", handle, "addr", fmt.Sprintf("%s:%d", cfg.Listen.IP, cfg.Listen.Port))

	controlAddr := fmt.Sprintf("%s:%d", cfg.ControlServer.IP, cfg.ControlServer.Port)
	grpcSrv, serveGRPC, err := controlplane.NewGRPCServer(controlAddr, manager)
	if err != nil {
		_ = manager.StopAll()
		return runtimeFailure(fmt.Errorf("start control plane: %w", err))
	}
	go func() {
		if err := serveGRPC(); err != nil {
			log.Warn("control plane server stopped", "error", err)
		}
	}()
	log.Info("control plane listening", "addr", controlAddr)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.IP, cfg.Metrics.Port)
		metricsSrv, err = metrics.Start(metricsAddr, manager)
		if err != nil {
			_ = manager.StopAll()
			grpcSrv.Stop()
			return runtimeFailure(fmt.Errorf("start metrics endpoint: %w", err))
		}
		log.Info("metrics listening", "addr", metricsAddr)
	}

	loader.Watch(func(r config.Reloadable) {
		log.Info("applied reloadable config", "header_interval", r.Logging.HeaderInterval)
	})

	stopHeader := startHeaderLogger(log, manager, cfg.Logging.HeaderInterval)
	defer stopHeader()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	if err := manager.StopAll(); err != nil {
		log.Warn("error stopping servers", "error", err)
	}
	manager.WaitAll()
	grpcSrv.GracefulStop()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(context.Background()); err != nil {
			log.Warn("error stopping metrics endpoint", "error", err)
		}
	}
	return nil
}

// startHeaderLogger logs an aggregate stats sample every interval, the Go
// analogue of the periodic console header the original prints from its
// main loop. A zero interval disables it, per spec.md §6's
// logging.header_interval key.
func startHeaderLogger(log *slog.Logger, manager *server.Manager, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				for handle, sample := range manager.GetStats() {
					log.Info("stats",
						"server_id", handle,
						"accepted", sample.AcceptedCnt,
						"sessions_total", sample.SessionPoolStats.NumItemsTotal,
						"sessions_in_flight", sample.SessionPoolStats.NumItemsInFlight,
						"transactions_delta", sample.SessionStatsDelta.TransactionsCnt,
					)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
