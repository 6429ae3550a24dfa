package policy

import "errors"

// Directory error kinds. Returned errors wrap one of these with context, so
// callers test them with errors.Is.
var (
	ErrUnknownFaction      = errors.New("unknown faction")
	ErrUnknownPolicyType   = errors.New("unknown policy type")
	ErrDuplicateFaction    = errors.New("faction already exists")
	ErrDuplicatePolicyType = errors.New("policy type already registered")

	// ErrKindMismatch means a policy type was used through an accessor of
	// another kind, or with the wrong number of factions.
	ErrKindMismatch = errors.New("policy kind mismatch")

	// ErrSelfPair means a pair accessor was given the same faction twice.
	// Pair policies toward oneself are not modelled.
	ErrSelfPair = errors.New("faction paired with itself")

	ErrInvalidDescriptor = errors.New("invalid policy descriptor")
)

var (
	ErrInvalidFaction = errors.New("invalid faction name")

	// ErrValueType means a saved value is not of the Go type the policy
	// type's default produces.
	ErrValueType = errors.New("policy value type mismatch")
)
