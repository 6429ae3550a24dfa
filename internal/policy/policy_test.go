package policy

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test value types shared by the package tests.

type counter struct{ N int }

func (c *counter) Clone() Value { cp := *c; return &cp }

type flag struct{ On bool }

func (f *flag) Clone() Value { cp := *f; return &cp }

const (
	tStanding TypeID = "standing"
	tAttitude TypeID = "attitude"
	tWar      TypeID = "war"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	return New(Options{Logger: quietLogger()})
}

func standingType() Descriptor {
	return Descriptor{ID: tStanding, Kind: Internal, Category: "internal", Default: func() Value { return &counter{} }}
}

func attitudeType() Descriptor {
	return Descriptor{ID: tAttitude, Kind: OneWay, Category: "diplomacy", Default: func() Value { return &counter{} }}
}

func warType() Descriptor {
	return Descriptor{ID: tWar, Kind: TwoWay, Category: "diplomacy", Default: func() Value { return &flag{} }}
}

// registerAll registers the three test types on d.
func registerAll(t *testing.T, d *Directory) {
	t.Helper()
	for _, desc := range []Descriptor{standingType(), attitudeType(), warType()} {
		_, err := d.RegisterType(desc)
		require.NoError(t, err)
	}
}

func createAll(t *testing.T, d *Directory, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, d.CreateFaction(n))
	}
}
