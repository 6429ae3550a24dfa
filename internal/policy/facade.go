package policy

import "fmt"

// Get reads a policy of any kind. Internal types take one faction, one-way
// and two-way types take two.
func (d *Directory) Get(t TypeID, factions ...string) (Value, error) {
	return d.get(t, anyKind, factions)
}

// Save writes a policy of any kind. Internal types take one faction, one-way
// and two-way types take two.
func (d *Directory) Save(t TypeID, v Value, factions ...string) error {
	return d.save(t, anyKind, factions, v)
}

// GetAs reads a policy and asserts its concrete type.
func GetAs[T Value](d *Directory, t TypeID, factions ...string) (T, error) {
	var zero T
	v, err := d.Get(t, factions...)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("get %s: stored %T: %w", t, v, ErrValueType)
	}
	return tv, nil
}

// Update reads a policy, lets fn change the copy and saves it back.
// Concurrent updates of the same slot may interleave between the read and
// the save; the last save wins.
func Update[T Value](d *Directory, t TypeID, fn func(T), factions ...string) error {
	v, err := GetAs[T](d, t, factions...)
	if err != nil {
		return err
	}
	fn(v)
	return d.Save(t, v, factions...)
}
