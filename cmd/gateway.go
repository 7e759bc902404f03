package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/instance-gateway/config"
	"github.com/angeloszaimis/instance-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/instance-gateway/internal/dispatcher"
	"github.com/angeloszaimis/instance-gateway/internal/healthcheck"
	"github.com/angeloszaimis/instance-gateway/internal/httpserver"
	"github.com/angeloszaimis/instance-gateway/internal/instance"
	"github.com/angeloszaimis/instance-gateway/internal/metrics"
	"github.com/angeloszaimis/instance-gateway/internal/supervisor"
)

const shutdownGrace = 10 * time.Second

type gateway struct {
	cfg       *config.Config
	log       *slog.Logger
	endpoints []*instance.Endpoint
	breakers  *circuitbreaker.Registry
	collector *metrics.Collector
	checker   *healthcheck.Checker
	proxy     http.Handler
	admin     http.Handler
}

func newGateway(cfg *config.Config, log *slog.Logger) (*gateway, error) {
	endpoints, err := instance.ParseEndpoints(cfg.Instance.Endpoints)
	if err != nil {
		return nil, err
	}

	breakers := circuitbreaker.NewRegistry(
		cfg.CircuitBreaker.FailureThreshold,
		config.Duration(cfg.CircuitBreaker.ResetTimeout),
	)

	router, err := instance.NewRouter(endpoints,
		instance.WithLogger(log),
		instance.WithBreakers(breakers),
		instance.WithVirtualNodes(cfg.Placement.VirtualNodes),
	)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)

	return &gateway{
		cfg:       cfg,
		log:       log,
		endpoints: endpoints,
		breakers:  breakers,
		collector: collector,
		checker: healthcheck.New(
			config.Duration(cfg.HealthCheck.Interval),
			cfg.HealthCheck.Path,
			log,
			collector,
		),
		proxy: dispatcher.New(cfg.Instance.Name, router, log, collector),
		admin: setupAdminRouter(collector, endpoints, breakers, cfg.Instance.Name),
	}, nil
}

// run serves until ctx is done or a listener fails, then shuts everything down.
func (g *gateway) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.collector.Start(ctx)

	proc, err := g.startInstance(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.checker.Run(ctx, g.endpoints)
	}()

	proxySrv, err := httpserver.New(g.cfg.Server.Address, g.proxy,
		httpserver.WithLogger(g.log),
		httpserver.WithTimeouts(
			config.Duration(g.cfg.Server.ReadTimeout),
			config.Duration(g.cfg.Server.WriteTimeout),
			config.Duration(g.cfg.Server.IdleTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("proxy listener: %w", err)
	}

	servers := []*httpserver.Server{proxySrv}
	if g.cfg.Admin.Address != "" {
		adminSrv, err := httpserver.New(g.cfg.Admin.Address, g.admin, httpserver.WithLogger(g.log))
		if err != nil {
			return fmt.Errorf("admin listener: %w", err)
		}
		servers = append(servers, adminSrv)
	}

	srvErrCh := make(chan error, len(servers))
	for _, srv := range servers {
		g.log.Info("Listening", slog.String("address", srv.Addr()))
		go func(srv *httpserver.Server) {
			srvErrCh <- srv.Start()
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		g.log.Info("Shutting down gracefully...")
	case runErr = <-srvErrCh:
		g.log.Error("Listener failed", slog.Any("err", runErr))
	case <-exited(proc):
		runErr = fmt.Errorf("%w: %v", supervisor.ErrExited, proc.Err())
		g.log.Error("Instance process exited, shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.log.Error("Error during shutdown", slog.Any("err", err))
		}
	}

	cancel()
	wg.Wait()

	if proc != nil {
		if err := proc.Terminate(shutdownCtx); err != nil {
			g.log.Error("Could not stop instance process", slog.Any("err", err))
		}
	}

	return runErr
}

// startInstance launches the configured instance process, if any, and waits
// until its first endpoint accepts connections.
func (g *gateway) startInstance(ctx context.Context) (*supervisor.Process, error) {
	ic := g.cfg.Instance
	if ic.Command == "" {
		return nil, nil
	}

	proc, err := supervisor.Start(ctx, supervisor.Options{
		Command:        ic.Command,
		Args:           ic.Args,
		Env:            ic.Env,
		BrowserURL:     ic.BrowserURL,
		Address:        supervisor.HostPort(g.endpoints[0].URL()),
		StartupTimeout: config.Duration(ic.StartupTimeout),
		Logger:         g.log,
	})
	if err != nil && !errors.Is(err, supervisor.ErrNoCommand) {
		return nil, fmt.Errorf("start instance: %w", err)
	}
	return proc, nil
}

// exited never fires for a gateway fronting an externally managed instance.
func exited(proc *supervisor.Process) <-chan struct{} {
	if proc == nil {
		return nil
	}
	return proc.Exited()
}
