package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tresor"
	"github.com/unkn0wn-root/tresor/config"
	asynchook "github.com/unkn0wn-root/tresor/hooks/async"
	"github.com/unkn0wn-root/tresor/httpapi"
	"github.com/unkn0wn-root/tresor/promhooks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	lg, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	if lg.sync != nil {
		defer func() { _ = lg.sync() }()
	}

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ph, err := promhooks.New(reg)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	hooks := tresor.MultiHooks{ph}
	if lg.hooks != nil {
		ah := asynchook.New(lg.hooks, 1, 1024)
		defer ah.Close()
		hooks = append(hooks, ah)
	}

	parts, err := buildCache(ctx, cfg.Cache, st, lg, hooks)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}
	svc, err := tresor.New(tresor.Options{
		Salt:          cfg.Salt,
		Store:         st,
		Cache:         parts.cache,
		Logger:        lg,
		Hooks:         hooks,
		MaxBatchCells: cfg.Cache.MaxBatchCells,
	})
	if err != nil {
		_ = parts.cache.Close(ctx)
		_ = parts.closeRedis()
		_ = st.Close(ctx)
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := errors.Join(svc.Close(cctx), parts.closeRedis()); err != nil {
			lg.Error("close failed", tresor.Fields{"err": err})
		}
	}()

	if err := svc.Setup(ctx, cfg.Store.SetupAttempts); err != nil {
		return err
	}

	var metrics http.Handler
	if cfg.HTTP.Metrics {
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	api, err := httpapi.New(httpapi.Options{
		Service:     svc,
		Secret:      []byte(cfg.Auth.JWTSecret),
		Logger:      lg,
		Development: cfg.HTTP.Development,
		DevOrigin:   cfg.HTTP.DevOrigin,
		Origin:      cfg.HTTP.Origin,
		Metrics:     metrics,
		Limits: httpapi.Limits{
			MaxBody:     cfg.HTTP.MaxBody,
			MaxString:   cfg.HTTP.MaxString,
			MaxManyBody: cfg.HTTP.MaxManyBody,
		},
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("listening", tresor.Fields{"addr": srv.Addr, "store": cfg.Store.Backend, "provider": cfg.Cache.Provider})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Requests get storage_unavailable until the first warm succeeds.
		start := time.Now()
		n, err := svc.WarmWithRetry(gctx, cfg.Cache.WarmAttempts)
		if err != nil {
			lg.Error("warm failed; giving up", tresor.Fields{"err": err})
			return err
		}
		lg.Info("cache warmed", tresor.Fields{"entries": n, "took": time.Since(start).String()})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		lg.Info("shutting down", nil)
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
