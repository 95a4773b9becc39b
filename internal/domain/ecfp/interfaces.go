package ecfp

import (
	"context"

	"github.com/turtacn/ecfplookup/internal/domain/molecule"
)

// Engine is the cheminformatics capability the tool delegates to.  All three
// operations are deterministic for a given input; callers never retry them.
type Engine interface {
	// GenerateFingerprint returns the feature identifiers of m under p.
	GenerateFingerprint(ctx context.Context, p *Parameters, m *molecule.Molecule) (*IdentifierSet, error)

	// BuildLookup indexes every circular substructure of m under p by its
	// feature identifier.
	BuildLookup(ctx context.Context, p *Parameters, m *molecule.Molecule) (*LookupIndex, error)

	// RenderSMARTS exports a substructure as a SMARTS pattern.
	RenderSMARTS(ctx context.Context, s Substructure) (string, error)
}
