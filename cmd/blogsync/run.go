package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/dnscache"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/api"
	"github.com/eugener/blogsync/internal/blog"
	"github.com/eugener/blogsync/internal/cache"
	"github.com/eugener/blogsync/internal/circuitbreaker"
	"github.com/eugener/blogsync/internal/config"
	"github.com/eugener/blogsync/internal/ratelimit"
	"github.com/eugener/blogsync/internal/reauth"
	"github.com/eugener/blogsync/internal/server"
	"github.com/eugener/blogsync/internal/store"
	"github.com/eugener/blogsync/internal/telemetry"
	"github.com/eugener/blogsync/internal/transport"
	"github.com/eugener/blogsync/internal/worker"
)

type options struct {
	configPath string
	args       []string
	serve      bool
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if len(opts.args) == 0 {
		return errors.New("no command given; run with -h for usage")
	}
	cmd, ok := commands[opts.args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", opts.args[0])
	}
	if err := cmd.check(opts.args[1:]); err != nil {
		return err
	}

	// Load config
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	slog.Info("starting blogsync", "version", version, "api", cfg.API.BaseURL)

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, version, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var workers []worker.Worker

	// Transport
	var resolver *dnscache.Resolver
	if cfg.API.DNSCache {
		resolver = &dnscache.Resolver{}
		workers = append(workers, worker.NewDNSRefresher(resolver))
	}
	var etags *cache.Memory
	if cfg.Cache.ETag.Enabled {
		etags, err = cache.NewMemory(cfg.Cache.ETag.MaxSize, cfg.Cache.ETag.TTL)
		if err != nil {
			return err
		}
	}
	tr, err := transport.NewHTTP(transport.Options{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.RequestTimeout,
		UserAgent: cfg.API.UserAgent + "/" + version,
		Resolver:  resolver,
		ETags:     etags,
		Observer:  metrics,
	})
	if err != nil {
		return err
	}

	// Cache and session
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	s := store.New(store.Options{
		KeepAlive:    cfg.Cache.KeepAlive,
		FetchTimeout: cfg.Cache.FetchTimeout,
		Observer:     metrics,
		BaseContext:  workerCtx,
	})
	var doer blogsync.Doer = tr
	if b := cfg.API.Breaker; b.Enabled {
		doer = circuitbreaker.Wrap(tr, circuitbreaker.Config{
			ErrorThreshold: b.ErrorThreshold,
			MinSamples:     b.MinSamples,
			Window:         b.Window,
			OpenTimeout:    b.OpenTimeout,
		}, metrics)
	}
	if cfg.API.RequestsPerMin > 0 {
		doer = ratelimit.Wrap(doer, ratelimit.NewLimiter(cfg.API.RequestsPerMin, nil))
	}
	ra := reauth.New(doer, reauth.Options{
		RefreshPath:   cfg.API.RefreshPath,
		MaxRefreshes:  cfg.Session.MaxRefreshes,
		RefreshWindow: cfg.Session.RefreshWindow,
		Observer:      metrics,
	})
	ra.OnSessionEnd(s.Reset)
	ra.OnSessionEnd(tr.ResetSession)

	client := blog.New(api.New(s, ra), blog.Options{PageLimit: cfg.API.PageLimit, Session: ra})

	// Background workers
	workers = append(workers, worker.NewSweeper(s, cfg.Cache.SweepInterval))
	if cfg.Telemetry.Metrics.Enabled {
		handler := server.New(server.Deps{
			Gatherer: reg,
			Cache:    s,
			Logger:   slog.Default().With("component", "ops"),
			ReadyCheck: func(ctx context.Context) error {
				_, err := client.Me(ctx)
				return err
			},
		})
		workers = append(workers, worker.NewHTTPServer(cfg.Telemetry.Metrics.Addr, handler))
	}
	runner := worker.NewRunner(workers...)
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(workerCtx) }()

	logout, cmdErr := login(ctx, client, cfg.Credentials)
	if cmdErr == nil {
		cmdErr = execute(ctx, client, cmd, opts.args[1:], out)
	}

	if opts.serve && cmdErr == nil {
		slog.Info("blogsync serving", "addr", cfg.Telemetry.Metrics.Addr)
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
		case err := <-runErr:
			cmdErr = err
			runErr = nil
		}
	}
	logout()

	stopWorkers()
	if runErr != nil {
		if err := <-runErr; err != nil && cmdErr == nil {
			cmdErr = err
		}
	}
	s.Wait()

	slog.Info("blogsync stopped")
	return cmdErr
}

// login starts a session when credentials are configured. The returned
// func ends it and is safe to call after ctx is cancelled.
func login(ctx context.Context, c *blog.Client, creds config.CredentialsConfig) (func(), error) {
	if creds.Email == "" {
		return func() {}, nil
	}
	me, err := c.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return func() {}, fmt.Errorf("login: %w", err)
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "logged in",
		slog.String("user_id", me.ID),
		slog.String("username", me.Username),
	)
	return func() {
		if err := c.Logout(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("logout failed", "error", err)
		}
	}, nil
}

func execute(ctx context.Context, c *blog.Client, cmd command, args []string, out io.Writer) error {
	result, err := cmd.run(ctx, c, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
