package ecfp

import (
	"fmt"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Substructure is the engine's serialized form of a feature's atom
// neighborhood.  Its content is opaque here; it is passed back to the engine
// for SMARTS export.
type Substructure struct {
	Format string `json:"format"`
	Source string `json:"source"`
	// Atoms lists the molecule atom indexes covered by the substructure, in
	// the engine's indexing convention.
	Atoms []int `json:"atoms,omitempty"`
}

// Feature is one concrete occurrence of a circular substructure in a
// molecule.
type Feature struct {
	Identifier   int32
	BitPosition  int
	Diameter     int
	CenterAtom   int
	Substructure Substructure
}

// Validate checks the invariants every occurrence must satisfy.
func (f Feature) Validate() error {
	if f.Diameter < 0 || f.Diameter%2 != 0 {
		return errors.InvalidParam("feature diameter must be an even non-negative number").
			WithDetail(fmt.Sprintf("identifier=%d diameter=%d", f.Identifier, f.Diameter))
	}
	if f.BitPosition < 0 {
		return errors.InvalidParam("feature bit position must be non-negative").
			WithDetail(fmt.Sprintf("identifier=%d bit=%d", f.Identifier, f.BitPosition))
	}
	if f.CenterAtom < 0 {
		return errors.InvalidParam("feature center atom index must be non-negative").
			WithDetail(fmt.Sprintf("identifier=%d atom=%d", f.Identifier, f.CenterAtom))
	}
	return nil
}

// LookupIndex maps feature identifiers to their occurrences within a single
// molecule.  It covers every circular substructure of the molecule, whether
// or not its identifier survives into the fingerprint.  An identifier can map
// to several occurrences: distinct substructures may hash to the same
// identifier, and one substructure may be centered on several atoms.
type LookupIndex struct {
	byID  map[int32][]Feature
	total int
}

// NewLookupIndex returns an empty index.
func NewLookupIndex() *LookupIndex {
	return &LookupIndex{byID: make(map[int32][]Feature)}
}

// Add appends an occurrence.  Occurrences of the same identifier keep their
// insertion order.
func (x *LookupIndex) Add(f Feature) {
	x.byID[f.Identifier] = append(x.byID[f.Identifier], f)
	x.total++
}

// Lookup returns the occurrences for id, or nil when the molecule has none.
func (x *LookupIndex) Lookup(id int32) []Feature {
	if x == nil {
		return nil
	}
	return x.byID[id]
}

// Occurrences returns the total number of occurrences in the index.
func (x *LookupIndex) Occurrences() int {
	if x == nil {
		return 0
	}
	return x.total
}
