package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"driplink/internal/config"
	"driplink/internal/httpapi"
	"driplink/internal/jobs"
	"driplink/internal/pkg/logger"
	"driplink/internal/pkg/shutdown"
	"driplink/internal/render"
	"driplink/internal/storage"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the render backend HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg config.Config) error {
	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "driplink-render",
	})

	log.Info("starting driplink render backend", "version", version)

	// Ensure storage dirs before taking the lock: the lock file lives in
	// the data dir.
	layout := storage.NewLayout(cfg.Storage.DataDir)
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare data dirs: %w", err)
	}

	// One manager instance per data dir; job state is in-memory and two
	// servers over the same tree would fight over outputs.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another driplink instance is already running (lock: %s)", cfg.LockPath())
	}
	defer lock.Unlock()

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	invoker := render.NewInvoker(cfg.Render.FFmpegBinary, cfg.Render.FFprobeBinary, log)
	if err := invoker.Check(); err != nil {
		// The service can start without the binaries; renders will fail
		// until they appear, and /health?deep=true reports it.
		log.Warn("transcoder tooling unavailable", "error", err.Error())
	}

	manager := jobs.NewManager(jobs.Config{
		Workers:    cfg.Render.Workers,
		OutputRoot: layout.OutputRoot(),
		Renderer:   invoker,
		Log:        log,
	})
	shutdownMgr.Register("worker-pool", func(ctx context.Context) error {
		return manager.Close(ctx)
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Jobs:           manager,
		Layout:         layout,
		Checker:        invoker,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Log:            log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
	return nil
}
