package social

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/factions/internal/policy"
)

func newDirectory(t *testing.T, profiles *Profiles) *policy.Directory {
	t.Helper()
	dir := policy.New(policy.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, Register(dir, profiles, 42))
	return dir
}

func TestRegister_Idempotent(t *testing.T) {
	dir := newDirectory(t, NewProfiles())
	require.NoError(t, Register(dir, NewProfiles(), 42))

	assert.Equal(t, []policy.TypeID{TypeAttitude, TypeEmbargo, TypeStanding, TypeTendencies, TypeTreaty, TypeWar},
		dir.Registry().Types())
	assert.Equal(t, []string{"diplomacy", "economy", "internal"}, dir.Registry().Categories())
}

func TestTendencies_FromProfile(t *testing.T) {
	profiles := NewProfiles(SeedProfiles()...)
	dir := newDirectory(t, profiles)
	require.NoError(t, dir.CreateFaction("Iron Brotherhood"))
	require.NoError(t, dir.CreateFaction("Nobody"))

	tend, err := policy.GetAs[*Tendencies](dir, TypeTendencies, "Iron Brotherhood")
	require.NoError(t, err)
	assert.Equal(t, 0.9, tend.Military)

	none, err := policy.GetAs[*Tendencies](dir, TypeTendencies, "Nobody")
	require.NoError(t, err)
	assert.Equal(t, Tendencies{}, *none)
}

func TestAttitudeGenerator_Deterministic(t *testing.T) {
	build := func() *policy.Directory {
		dir := newDirectory(t, NewProfiles(SeedProfiles()...))
		_, err := Seed(dir, SeedProfiles(), nil)
		require.NoError(t, err)
		return dir
	}
	a, b := build(), build()
	assert.Equal(t, a.Export(), b.Export())

	differs := false
	names := a.ListFactions()
	for _, x := range names {
		for _, y := range names {
			if x == y {
				continue
			}
			xy, err := policy.GetAs[*Attitude](a, TypeAttitude, x, y)
			require.NoError(t, err)
			yx, err := policy.GetAs[*Attitude](a, TypeAttitude, y, x)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, xy.Score, -100.0)
			assert.LessOrEqual(t, xy.Score, 100.0)
			if xy.Score != yx.Score {
				differs = true
			}
		}
	}
	assert.True(t, differs, "generated attitudes are asymmetric")
}

func TestAttitudeGenerator_SimilarFactionsLikeEachOther(t *testing.T) {
	profiles := NewProfiles(
		Profile{Name: "Twin A", Tendencies: Tendencies{Tax: 0.5, Trade: 0.5, Military: -0.5}},
		Profile{Name: "Twin B", Tendencies: Tendencies{Tax: 0.5, Trade: 0.5, Military: -0.5}},
		Profile{Name: "Opposite", Tendencies: Tendencies{Tax: -0.5, Trade: -0.5, Military: 0.5}},
	)
	dir := newDirectory(t, profiles)
	for _, n := range []string{"Twin A", "Twin B", "Opposite"} {
		require.NoError(t, dir.CreateFaction(n))
	}

	twins, err := policy.GetAs[*Attitude](dir, TypeAttitude, "Twin A", "Twin B")
	require.NoError(t, err)
	enemies, err := policy.GetAs[*Attitude](dir, TypeAttitude, "Twin A", "Opposite")
	require.NoError(t, err)
	assert.Greater(t, twins.Score, enemies.Score)
}

func TestSeed(t *testing.T) {
	dir := newDirectory(t, NewProfiles(SeedProfiles()...))

	names, err := Seed(dir, SeedProfiles(), SeedRelations())
	require.NoError(t, err)
	assert.Len(t, names, 5)

	crown, err := policy.GetAs[*Attitude](dir, TypeAttitude, "The Crown", "Iron Brotherhood")
	require.NoError(t, err)
	assert.Equal(t, 30.0, crown.Score)
	back, err := policy.GetAs[*Attitude](dir, TypeAttitude, "Iron Brotherhood", "The Crown")
	require.NoError(t, err)
	assert.Equal(t, 30.0, back.Score)

	// Customize, then seed again: nothing is recreated or reset.
	require.NoError(t, SetRelation(dir, "The Crown", "Iron Brotherhood", 80))
	names, err = Seed(dir, SeedProfiles(), SeedRelations())
	require.NoError(t, err)
	assert.Empty(t, names)
	crown, err = policy.GetAs[*Attitude](dir, TypeAttitude, "The Crown", "Iron Brotherhood")
	require.NoError(t, err)
	assert.Equal(t, 80.0, crown.Score)
}

func TestSetRelation_Clamps(t *testing.T) {
	dir := newDirectory(t, NewProfiles())
	require.NoError(t, dir.CreateFaction("A"))
	require.NoError(t, dir.CreateFaction("B"))

	require.NoError(t, SetRelation(dir, "A", "B", -250))
	att, err := policy.GetAs[*Attitude](dir, TypeAttitude, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, -100.0, att.Score)

	assert.ErrorIs(t, SetRelation(dir, "A", "Z", 1), policy.ErrUnknownFaction)
}

func TestParseFactionKind(t *testing.T) {
	k, err := ParseFactionKind("military")
	require.NoError(t, err)
	assert.Equal(t, FactionMilitary, k)
	assert.Equal(t, "Military", k.String())

	_, err = ParseFactionKind("pirate")
	assert.Error(t, err)
	assert.Equal(t, "Unknown", FactionKind(42).String())
}
