package models

import "fmt"

// EntityID identifies an entity owned by the external ECS. The core never
// allocates ids; it only keys component data by them.
type EntityID uint64

func (id EntityID) String() string { return fmt.Sprintf("entity#%d", uint64(id)) }

// Pair is an unordered entity pair normalized so that A < B.
type Pair struct {
	A EntityID
	B EntityID
}

// MakePair normalizes (a, b) into a Pair.
func MakePair(a, b EntityID) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Less orders pairs lexicographically; used wherever iteration must be deterministic.
func (p Pair) Less(o Pair) bool {
	if p.A != o.A {
		return p.A < o.A
	}
	return p.B < o.B
}
