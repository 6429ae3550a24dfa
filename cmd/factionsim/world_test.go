package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/factions/internal/config"
	"github.com/talgya/factions/internal/social"
)

func useTempConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = config.Config{
		DBPath: filepath.Join(t.TempDir(), "data", "factions.db"),
		Seed:   42,
	}
	t.Cleanup(func() { cfg = prev })
}

func TestOpenWorld_SeedsThenRestores(t *testing.T) {
	useTempConfig(t)

	w, err := openWorld()
	require.NoError(t, err)
	assert.False(t, w.restored)
	assert.Len(t, w.sim.Dir.ListFactions(), len(social.SeedProfiles()))

	require.NoError(t, w.sim.Dir.SaveInternal(social.TypeStanding, "The Crown", &social.Standing{Value: 7}))
	w.sim.SetTick(1440)
	require.NoError(t, w.db.SaveWorldState(w.sim))
	w.close()

	w, err = openWorld()
	require.NoError(t, err)
	defer w.close()
	assert.True(t, w.restored)
	assert.Equal(t, uint64(1440), w.tick)

	s, err := w.sim.Dir.GetInternal(social.TypeStanding, "The Crown")
	require.NoError(t, err)
	assert.Equal(t, 7, s.(*social.Standing).Value)
}

func TestOpenWorld_MissingCatalog(t *testing.T) {
	useTempConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := openWorld()
	assert.Error(t, err)
}

func TestExportJSON(t *testing.T) {
	useTempConfig(t)
	w, err := openWorld()
	require.NoError(t, err)
	defer w.close()

	out := exportJSON(w.sim.Dir.Export())
	entries := out["entries"].([]jsonEntry)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		if e.Kind == "internal" {
			assert.Len(t, e.Factions, 1)
		} else {
			assert.Len(t, e.Factions, 2)
		}
	}
	assert.Equal(t, w.sim.Dir.ListFactions(), out["factions"])
}

func TestPrintFaction_Unknown(t *testing.T) {
	useTempConfig(t)
	w, err := openWorld()
	require.NoError(t, err)
	defer w.close()

	var buf bytes.Buffer
	inspectCmd.SetOut(&buf)
	defer inspectCmd.SetOut(nil)

	assert.Error(t, printFaction(inspectCmd, w.sim.Dir, "Nobody"))
	name := w.sim.Dir.ListFactions()[0]
	require.NoError(t, printFaction(inspectCmd, w.sim.Dir, name))
	assert.Contains(t, buf.String(), name)
	assert.Contains(t, buf.String(), "TOWARD")
}
