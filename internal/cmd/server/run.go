package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rzbill/runq/internal/auth"
	cfgpkg "github.com/rzbill/runq/internal/config"
	"github.com/rzbill/runq/internal/eventlog"
	"github.com/rzbill/runq/internal/metrics"
	"github.com/rzbill/runq/internal/registry"
	"github.com/rzbill/runq/internal/runtime"
	grpcserver "github.com/rzbill/runq/internal/server/grpc"
	httpserver "github.com/rzbill/runq/internal/server/http"
	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
	"github.com/rzbill/runq/internal/telemetry"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// Options for Run. Config is expected to be fully merged (file, env, flags).
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// OnReady, if set, is called with the bound addresses once both listeners
	// are open. An address is empty when that transport is disabled.
	OnReady func(httpAddr, grpcAddr string)
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled or a
// server fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		if logger, err = logpkg.ApplyConfig(&cfg.Log); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)

	shutdownTracing, err := telemetry.InitTracing(sctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown", logpkg.Err(err))
		}
	}()

	m := metrics.New()
	rt, err := runtime.Open(runtime.Options{
		DataDir:       filepath.Join(cfg.DataDir, "store"),
		Fsync:         fsync,
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		Config:        cfg,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	verifier, err := auth.NewVerifier(auth.Options{
		Secret:   cfg.Auth.Secret,
		MaxSkew:  time.Duration(cfg.Auth.MaxSkewMs) * time.Millisecond,
		Disabled: cfg.Auth.Disabled,
		OnReject: m.AuthRejected,
	})
	if err != nil {
		return err
	}
	if verifier.Disabled() {
		logger.Warn("request signing is disabled")
	}

	var httpLis, grpcLis net.Listener
	if cfg.HTTPAddr != "" {
		if httpLis, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
	}
	if cfg.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			if httpLis != nil {
				_ = httpLis.Close()
			}
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
	}

	logger.Info("starting runq server",
		logpkg.Str("http", addrOf(httpLis)),
		logpkg.Str("grpc", addrOf(grpcLis)),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Bool("tracing", cfg.Tracing.Enabled()),
	)

	sweeper := registry.NewSweeper(rt.Registry(), time.Duration(cfg.Registry.RunnerTTLMs)*time.Millisecond/2, 0, logger)
	sweeper.Start(sctx)
	defer sweeper.Stop()

	if events := rt.Events(); events != nil {
		retainer := eventlog.NewRetainer(events, eventlog.RetentionPolicy{
			MaxAge:   time.Duration(cfg.Events.RetentionMs) * time.Millisecond,
			MaxBytes: cfg.Events.MaxBytes,
			Interval: time.Duration(cfg.Events.TrimIntervalMs) * time.Millisecond,
		}, nil, logger)
		retainer.Start(sctx)
		defer retainer.Stop()
	}

	runCtx, cancel := context.WithCancel(sctx)
	defer cancel()
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	serve := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				errCh <- fmt.Errorf("%s server: %w", name, err)
				cancel()
			}
		}()
	}

	var gsrv *grpcserver.Server
	var hsrv *httpserver.Server
	if grpcLis != nil {
		gsrv = grpcserver.New(rt, verifier, logger)
		serve("grpc", func(ctx context.Context) error { return gsrv.Serve(ctx, grpcLis) })
	}
	if httpLis != nil {
		hsrv = httpserver.New(rt, verifier, logger)
		serve("http", func(ctx context.Context) error { return hsrv.Serve(ctx, httpLis) })
	}
	if opts.OnReady != nil {
		opts.OnReady(addrOf(httpLis), addrOf(grpcLis))
	}

	<-runCtx.Done()
	// Servers drain before the store closes.
	wg.Wait()
	logger.Info("runq server stopped")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func addrOf(l net.Listener) string {
	if l == nil {
		return ""
	}
	return l.Addr().String()
}
