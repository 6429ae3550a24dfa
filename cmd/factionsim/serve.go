package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/factions/internal/api"
	"github.com/talgya/factions/internal/catalog"
	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/metrics"
	"github.com/talgya/factions/internal/persistence"
	"github.com/talgya/factions/internal/phi"
)

var (
	servePort     int
	serveTick     time.Duration
	serveSnapshot string
	serveWatch    bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP API port (env FACTIONS_API_PORT)")
	serveCmd.Flags().DurationVar(&serveTick, "tick", time.Second, "Real time per sim-minute (env FACTIONS_TICK_INTERVAL)")
	serveCmd.Flags().StringVar(&serveSnapshot, "snapshot", "@every 5m", "Cron schedule for snapshots, empty to disable (env FACTIONS_SNAPSHOT_SCHEDULE)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the catalog when it changes (env FACTIONS_WATCH_CATALOG)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation and serve the HTTP API",
	Long: "Restores the saved world (or seeds a new one from the catalog), runs\n" +
		"the tick engine, serves the API and saves snapshots on a schedule.\n" +
		"The world is saved once more on shutdown.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("faction directory starting",
		"phi", phi.Phi,
		"agnosis", fmt.Sprintf("%.5f", phi.Agnosis),
	)

	w, err := openWorld()
	if err != nil {
		return err
	}
	defer w.close()
	sim := w.sim

	// Save on fresh generation only (loaded worlds are already saved).
	if !w.restored {
		if err := w.db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	collector := metrics.NewCollector(sim.Dir)
	defer collector.Close()

	eng := engine.NewEngine()
	eng.Interval = cfg.TickInterval
	eng.SetTick(w.tick)
	eng.OnTick = sim.TickMinute
	eng.OnDay = sim.TickDay
	eng.OnWeek = sim.TickWeek

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := persistence.NewScheduler(w.db, sim, cfg.SnapshotSchedule)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.WatchCatalog {
		watcher := catalog.NewWatcher(cfg.CatalogPath, 0, slog.Default())
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := watcher.Watch(ctx, func(c *catalog.Catalog) error {
				_, err := c.Apply(sim.Dir, w.profiles, cfg.Seed)
				return err
			})
			if err != nil {
				slog.Error("catalog watcher failed", "error", err)
			}
		}()
	}

	if cfg.AdminKey == "" {
		slog.Warn("FACTIONS_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	srv := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          w.db,
		Metrics:     collector,
		Port:        cfg.Port,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	fmt.Printf("\n%d factions under %d policy types.\n", len(sim.Dir.ListFactions()), sim.Dir.Registry().Len())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	if w.tick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", w.tick, engine.SimTime(w.tick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)
	sched.Stop()
	wg.Wait()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := w.db.SaveWorldState(sim); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	fmt.Println("Simulation stopped. World state saved.")
	return nil
}
