package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/ecfplookup/internal/domain/ecfp"
	"github.com/turtacn/ecfplookup/internal/domain/molecule"
)

// MockEngine is a testify mock of ecfp.Engine.
type MockEngine struct {
	mock.Mock
}

var _ ecfp.Engine = (*MockEngine)(nil)

func (m *MockEngine) GenerateFingerprint(ctx context.Context, p *ecfp.Parameters, mol *molecule.Molecule) (*ecfp.IdentifierSet, error) {
	args := m.Called(ctx, p, mol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecfp.IdentifierSet), args.Error(1)
}

func (m *MockEngine) BuildLookup(ctx context.Context, p *ecfp.Parameters, mol *molecule.Molecule) (*ecfp.LookupIndex, error) {
	args := m.Called(ctx, p, mol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecfp.LookupIndex), args.Error(1)
}

func (m *MockEngine) RenderSMARTS(ctx context.Context, s ecfp.Substructure) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}
