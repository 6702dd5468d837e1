// Package service wires the ingestion-and-projection pipeline and runs
// it until shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Travis-L-R/meshinfo/internal/api/rest"
	"github.com/Travis-L-R/meshinfo/internal/archive"
	"github.com/Travis-L-R/meshinfo/internal/config"
	"github.com/Travis-L-R/meshinfo/internal/export"
	"github.com/Travis-L-R/meshinfo/internal/ingest"
	"github.com/Travis-L-R/meshinfo/internal/mesh"
	"github.com/Travis-L-R/meshinfo/internal/render"
)

// Controller bootstraps all components and runs until shutdown.
type Controller struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewController creates a Controller for the given configuration.
func NewController(cfg *config.Config, logger *zap.Logger) *Controller {
	return &Controller{cfg: cfg, logger: logger}
}

// Run bootstraps the pipeline and blocks until SIGINT/SIGTERM or ctx
// cancellation.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.logger.Info("Starting meshinfo",
		zap.String("broker", c.cfg.Broker.URL()),
		zap.Strings("topics", c.cfg.Broker.TopicList()),
	)

	for _, dir := range []string{c.cfg.Paths.Data, c.cfg.Paths.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// --- 1. Set up the shared store ---
	store := mesh.NewStore()

	// --- 2. Set up the ingestion path ---
	handler := ingest.NewHandler(store, c.logger)
	if c.cfg.Archive.Enabled {
		arc, err := archive.Open(c.cfg.Archive.Path, c.logger)
		if err != nil {
			return fmt.Errorf("archive open: %w", err)
		}
		defer arc.Close()
		handler.SetArchiver(arc)
	}
	manager := ingest.NewManager(c.cfg.Broker, store, ingest.JSONDecoder{}, handler, c.logger)

	// --- 3. Set up the projection path ---
	exporter := export.New(c.cfg.Paths.Data, c.logger)
	serverNodeID, ok := mesh.CanonicalID(c.cfg.Server.NodeID)
	if !ok && c.cfg.Server.NodeID != "" {
		c.logger.Warn("Ignoring malformed server.node_id", zap.String("node_id", c.cfg.Server.NodeID))
	}
	renderer := render.NewHTMLRenderer(c.cfg.Paths.Templates)
	projector := render.NewProjector(renderer, c.cfg.Paths.Output, serverNodeID, c.cfg.Location(), c.logger)

	g, ctx := errgroup.WithContext(ctx)

	// --- 4. Run the ingestion loop ---
	g.Go(func() error {
		err := manager.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// --- 5. Run the read-only API ---
	if c.cfg.API.Enabled {
		api := rest.New(store, c.cfg.Paths.Output, c.logger)
		srv := &http.Server{Addr: c.cfg.API.Addr, Handler: api.Engine()}
		g.Go(func() error {
			c.logger.Info("REST API listening", zap.String("addr", c.cfg.API.Addr))
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// --- 6. Start schedulers ---
	c.startSchedulers(ctx, store, exporter, projector)

	// --- 7. Wait for shutdown signal ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
		c.logger.Info("Shutdown signal received")
	case <-ctx.Done():
		c.logger.Info("Context cancelled")
	}
	cancel()

	return g.Wait()
}

// startSchedulers runs the periodic export, render, and activity-flag
// refreshes. Each tick takes a consistent snapshot first, so the
// offloaded work never reads the live Store.
func (c *Controller) startSchedulers(ctx context.Context, store *mesh.Store, exporter *export.Exporter, projector *render.Projector) {
	sched := c.cfg.Schedule

	// Snapshot export
	go func() {
		ticker := time.NewTicker(sched.Export)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := exporter.ExportAll(store.Snapshot()); err != nil {
					c.logger.Error("Snapshot export failed", zap.Error(err))
				}
			}
		}
	}()

	// Page rendering
	go func() {
		ticker := time.NewTicker(sched.Render)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.MarkActive(time.Now(), c.cfg.Server.ActiveWindow)
				results := projector.RenderAll(store.Snapshot())
				failed := 0
				for _, res := range results {
					if res.Err != nil {
						failed++
					}
				}
				c.logger.Info("Render pass complete",
					zap.Int("pages", len(results)),
					zap.Int("failed", failed),
				)
			}
		}
	}()
}
