package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	src := newTestDirectory(t)
	registerAll(t, src)
	createAll(t, src, "Elves", "Dwarves", "Humans")
	require.NoError(t, src.SaveInternal(tStanding, "Dwarves", &counter{N: 12}))
	require.NoError(t, src.SaveOneWay(tAttitude, "Humans", "Elves", &counter{N: -3}))
	require.NoError(t, src.SaveTwoWay(tWar, "Humans", "Dwarves", &flag{On: true}))

	snap := src.Export()
	assert.Equal(t, []string{"Elves", "Dwarves", "Humans"}, snap.Factions)
	assert.Len(t, snap.Entries, 3+6+3)

	dst := newTestDirectory(t)
	registerAll(t, dst)
	notified := 0
	dst.Hub().SubscribeAll(func(Change) error { notified++; return nil })

	n, err := dst.Import(snap)
	require.NoError(t, err)
	assert.Equal(t, len(snap.Entries), n)
	assert.Equal(t, snap, dst.Export())
	assert.Zero(t, notified, "import does not notify")
}

func TestSnapshot_ExportIsACopy(t *testing.T) {
	d := newTestDirectory(t)
	registerAll(t, d)
	createAll(t, d, "A")

	snap := d.Export()
	snap.Entries[0].Value.(*counter).N = 50

	v, err := d.GetInternal(tStanding, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, v.(*counter).N)
}

func TestSnapshot_ImportSkipsUnknown(t *testing.T) {
	d := newTestDirectory(t)
	_, err := d.RegisterType(standingType())
	require.NoError(t, err)

	snap := Snapshot{
		Factions: []string{"A", "B"},
		Entries: []Entry{
			{Slot: Slot{Type: tStanding, Kind: Internal, First: "A"}, Value: &counter{N: 1}},
			{Slot: Slot{Type: tWar, Kind: TwoWay, First: "A", Second: "B"}, Value: &flag{On: true}},
			{Slot: Slot{Type: tStanding, Kind: OneWay, First: "A", Second: "B"}, Value: &counter{N: 2}},
			{Slot: Slot{Type: tStanding, Kind: Internal, First: "C"}, Value: &counter{N: 3}},
		},
	}

	n, err := d.Import(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"A", "B"}, d.ListFactions())

	v, err := GetAs[*counter](d, tStanding, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, v.N)
}

func TestSnapshot_ImportIntoExisting(t *testing.T) {
	d := newTestDirectory(t)
	registerAll(t, d)
	createAll(t, d, "A")

	n, err := d.Import(Snapshot{
		Factions: []string{"A", "B"},
		Entries: []Entry{
			{Slot: Slot{Type: tAttitude, Kind: OneWay, First: "B", Second: "A"}, Value: &counter{N: 8}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := GetAs[*counter](d, tAttitude, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 8, v.N)
	assert.Equal(t, 2, d.Stats().OneWay)
}
