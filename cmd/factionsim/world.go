package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/talgya/factions/internal/catalog"
	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/persistence"
	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

// world bundles what both commands open.
type world struct {
	db       *persistence.DB
	sim      *engine.Simulation
	catalog  *catalog.Catalog
	profiles *social.Profiles
	tick     uint64
	restored bool
}

// openWorld opens the database, registers the catalog's policy types,
// restores any saved state and seeds the catalog factions that are
// still missing.
func openWorld() (*world, error) {
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	dir := policy.New(policy.Options{Logger: slog.Default()})
	profiles := social.NewProfiles()
	if _, err := cat.Register(dir, profiles, cfg.Seed); err != nil {
		db.Close()
		return nil, err
	}

	w := &world{
		db:       db,
		sim:      engine.NewSimulation(dir, profiles),
		catalog:  cat,
		profiles: profiles,
	}

	has, err := db.HasState()
	if err != nil {
		w.close()
		return nil, fmt.Errorf("check saved state: %w", err)
	}
	if has {
		slog.Info("found saved world state, loading...")
		if w.tick, err = db.LoadWorldState(w.sim); err != nil {
			w.close()
			return nil, err
		}
		w.restored = true
	}

	res, err := cat.Apply(dir, profiles, cfg.Seed)
	if err != nil {
		w.close()
		return nil, err
	}
	slog.Info("world ready",
		"factions", len(dir.ListFactions()),
		"policy_types", dir.Registry().Len(),
		"new_factions", len(res.Created),
		"restored", w.restored,
		"sim_time", engine.SimTime(w.tick),
	)
	return w, nil
}

func (w *world) close() {
	w.sim.Close()
	if err := w.db.Close(); err != nil {
		slog.Warn("database close failed", "error", err)
	}
}
