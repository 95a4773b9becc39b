package ecfp

import (
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// IdentifierSet is the set of feature identifiers produced by fingerprinting
// one molecule.  Identifiers are signed 32-bit integers; duplicates collapse.
//
// Each iterates in the bitmap's unsigned order, which puts negative
// identifiers after positive ones.  Callers must not rely on any particular
// order; use Sorted when one is needed.
type IdentifierSet struct {
	bm *roaring.Bitmap
}

// NewIdentifierSet returns a set holding ids.
func NewIdentifierSet(ids ...int32) *IdentifierSet {
	s := &IdentifierSet{bm: roaring.New()}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id.  Adding an identifier twice has no effect.
func (s *IdentifierSet) Add(id int32) {
	s.bm.Add(uint32(id))
}

// Contains reports whether id is in the set.
func (s *IdentifierSet) Contains(id int32) bool {
	return s.bm.Contains(uint32(id))
}

// Len returns the number of distinct identifiers.
func (s *IdentifierSet) Len() int {
	if s == nil || s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

// Each calls fn for every identifier and stops at the first error.
func (s *IdentifierSet) Each(fn func(id int32) error) error {
	if s == nil || s.bm == nil {
		return nil
	}
	it := s.bm.Iterator()
	for it.HasNext() {
		if err := fn(int32(it.Next())); err != nil {
			return err
		}
	}
	return nil
}

// Sorted returns the identifiers in ascending signed order.
func (s *IdentifierSet) Sorted() []int32 {
	out := make([]int32, 0, s.Len())
	_ = s.Each(func(id int32) error {
		out = append(out, id)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String renders the set as "[a, b, c]" in ascending order.
func (s *IdentifierSet) String() string {
	ids := s.Sorted()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
