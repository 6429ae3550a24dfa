package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(quietLogger())

	require.NoError(t, r.Register(standingType()))

	kind, err := r.Classify(tStanding)
	require.NoError(t, err)
	assert.Equal(t, Internal, kind)

	d, err := r.Lookup(tStanding)
	require.NoError(t, err)
	assert.Equal(t, "standing", d.Name, "name defaults to id")
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.Register(standingType()))

	dup := standingType()
	dup.Kind = TwoWay
	err := r.Register(dup)

	require.ErrorIs(t, err, ErrDuplicatePolicyType)
	kind, _ := r.Classify(tStanding)
	assert.Equal(t, Internal, kind, "first registration kept")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry(quietLogger())

	tests := []struct {
		name string
		desc Descriptor
	}{
		{"empty id", Descriptor{Kind: Internal, Default: func() Value { return &counter{} }}},
		{"no default", Descriptor{ID: "x", Kind: Internal}},
		{"bad kind", Descriptor{ID: "x", Kind: Kind(9), Default: func() Value { return &counter{} }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.Register(tt.desc), ErrInvalidDescriptor)
		})
	}
	assert.Zero(t, r.Len())
}

func TestRegistry_ClassifyUnknown(t *testing.T) {
	r := NewRegistry(quietLogger())
	_, err := r.Classify("missing")
	assert.ErrorIs(t, err, ErrUnknownPolicyType)
}

func TestRegistry_TypesSorted(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.Register(warType()))
	require.NoError(t, r.Register(standingType()))
	require.NoError(t, r.Register(attitudeType()))

	assert.Equal(t, []TypeID{tAttitude, tStanding, tWar}, r.Types())
}

func TestRegistry_Categories(t *testing.T) {
	r := NewRegistry(quietLogger())
	require.NoError(t, r.Register(warType()))
	require.NoError(t, r.Register(standingType()))
	require.NoError(t, r.Register(attitudeType()))
	require.NoError(t, r.Register(Descriptor{ID: "misc", Kind: Internal, Default: func() Value { return &counter{} }}))

	assert.Equal(t, []string{"diplomacy", "general", "internal"}, r.Categories())

	diplomacy := r.InCategory("diplomacy")
	require.Len(t, diplomacy, 2)
	assert.Equal(t, tAttitude, diplomacy[0].ID)
	assert.Equal(t, tWar, diplomacy[1].ID)
	assert.Empty(t, r.InCategory("nope"))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Internal, OneWay, TwoWay} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind("TWO_WAY")
	require.NoError(t, err)
	assert.Equal(t, TwoWay, got)

	_, err = ParseKind("sideways")
	assert.Error(t, err)
}
