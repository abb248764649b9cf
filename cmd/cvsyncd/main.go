// Command cvsyncd is the cvsync origin server: it loads a configuration
// file, builds the configured collections and ACL, and accepts client
// connections on a TCP listener, handing each one to pkg/session.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/acl"
	"github.com/dittosync/cvsync/pkg/config"
	"github.com/dittosync/cvsync/pkg/mux"
	"github.com/dittosync/cvsync/pkg/session"
	"github.com/dittosync/cvsync/pkg/transport"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cvsyncd",
	Short: "cvsyncd is the cvsync origin server",
	Long: `cvsyncd loads a configuration file, builds the configured
collections and ACL, and accepts client connections on a TCP listener,
handing each one to the session layer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to the platform config dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cvsyncd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("cvsyncd: init logger: %w", err)
	}
	logger.Info("cvsyncd starting", "listen", net.JoinHostPort(cfg.ListenAddress, fmt.Sprintf("%d", cfg.ListenPort)), "fallback_hash", cfg.Hash)

	collections, err := config.BuildCollections(cfg.Collections)
	if err != nil {
		return err
	}
	refuseList, err := config.LoadRefusePatterns(cfg)
	if err != nil {
		return err
	}
	serverCollections := make(map[string]session.ServerCollection, len(collections))
	for name, c := range collections {
		serverCollections[name] = session.ServerCollection{Collection: c, Refuse: refuseList}
	}

	rules, err := config.LoadACLRules(cfg)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	evaluator := acl.NewEvaluator(rules, cfg.MaxClients).WithMetrics(acl.NewMetrics(registry))
	muxMetrics := mux.NewMetrics(registry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Port, registry)
	}

	addr := net.JoinHostPort(cfg.ListenAddress, fmt.Sprintf("%d", cfg.ListenPort))
	ln, err := transport.Listen(ctx, addr, transport.ListenerOptions{ReusePort: true})
	if err != nil {
		return err
	}
	defer ln.Close()

	return acceptLoop(ctx, ln, session.ServerConfig{
		Collections: serverCollections,
		ACL:         evaluator,
		Metrics:     muxMetrics,
		HaltFile:    cfg.HaltFile,
	}, cfg.ShutdownTimeout)
}

// acceptLoop runs the main accept loop: block on readiness, accept, hand
// each connection to its own goroutine, and stop cleanly when ctx is
// canceled. A present cfg.HaltFile does not stop the loop: each session
// rejects its own connection (see session.ServerConfig.HaltFile). Once ctx
// is done it waits up to shutdownTimeout for in-flight sessions to
// finish before returning, rather than waiting on them forever.
func acceptLoop(ctx context.Context, ln net.Listener, scfg session.ServerConfig, shutdownTimeout time.Duration) error {
	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	defer func() {
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timeout elapsed with sessions still in flight")
		}
	}()

	for {
		conn, err := transport.AcceptWithReadiness(ctx, ln, transport.AcceptTick)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("accept failed", logger.Err(err))
			continue
		}
		transport.LogAccept(conn)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			if err := session.RunServer(ctx, conn, scfg); err != nil {
				logger.Warn("session ended with error", logger.Err(err))
			}
		}()
	}
}

func serveMetrics(ctx context.Context, port int, registry *prometheus.Registry) {
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: httpMux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", logger.Err(err))
	}
}
