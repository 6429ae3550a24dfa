package policy

import "strings"

// OrderedKey identifies a directed faction pair. (A,B) and (B,A) are distinct.
type OrderedKey struct {
	First  string
	Second string
}

// UnorderedKey identifies an undirected faction pair. Always build it with
// Unordered so that First <= Second and both argument orders share a slot.
type UnorderedKey struct {
	First  string
	Second string
}

// Ordered returns the key for a's policy toward b.
func Ordered(a, b string) OrderedKey {
	return OrderedKey{First: a, Second: b}
}

// Unordered returns the canonical key for the pair {a, b}. The smaller name
// under byte-wise comparison is stored first.
func Unordered(a, b string) UnorderedKey {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return UnorderedKey{First: a, Second: b}
}

// Self reports whether both ends of the key name the same faction.
func (k OrderedKey) Self() bool { return k.First == k.Second }

// Self reports whether both ends of the key name the same faction.
func (k UnorderedKey) Self() bool { return k.First == k.Second }

// Reverse returns b's key toward a.
func (k OrderedKey) Reverse() OrderedKey {
	return OrderedKey{First: k.Second, Second: k.First}
}

func (k OrderedKey) String() string   { return k.First + ">" + k.Second }
func (k UnorderedKey) String() string { return k.First + "&" + k.Second }
