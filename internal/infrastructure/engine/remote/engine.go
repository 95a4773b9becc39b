package remote

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/turtacn/ecfplookup/internal/domain/ecfp"
	"github.com/turtacn/ecfplookup/internal/domain/molecule"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Service endpoints.
const (
	fingerprintPath = "/v1/ecfp/fingerprint"
	lookupPath      = "/v1/ecfp/lookup"
	smartsPath      = "/v1/smarts"
)

// moleculeDTO is the wire form of a molecule record.
type moleculeDTO struct {
	Format string `json:"format"`
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
}

type ecfpRequest struct {
	Parameters *ecfp.Parameters `json:"parameters"`
	Molecule   moleculeDTO      `json:"molecule"`
}

type fingerprintResponse struct {
	Identifiers []int32 `json:"identifiers"`
}

type featureDTO struct {
	Identifier   int32             `json:"identifier"`
	BitPosition  int               `json:"bit_position"`
	Diameter     int               `json:"diameter"`
	CenterAtom   int               `json:"center_atom"`
	Substructure ecfp.Substructure `json:"substructure"`
}

type lookupResponse struct {
	Features []featureDTO `json:"features"`
}

type smartsRequest struct {
	Substructure ecfp.Substructure `json:"substructure"`
}

type smartsResponse struct {
	SMARTS string `json:"smarts"`
}

// Engine adapts Client to ecfp.Engine.
type Engine struct {
	client *Client
}

var _ ecfp.Engine = (*Engine)(nil)

// NewEngine returns an engine backed by c.
func NewEngine(c *Client) *Engine {
	return &Engine{client: c}
}

func toDTO(m *molecule.Molecule) moleculeDTO {
	return moleculeDTO{Format: m.Format.String(), Source: m.Source, Name: m.Name}
}

func recordDetail(m *molecule.Molecule) string {
	return fmt.Sprintf("record %d", m.Index)
}

// failureDetail tells a molecule the engine refused apart from an engine
// that failed.
func failureDetail(m *molecule.Molecule, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsUnprocessable() {
		return recordDetail(m) + " rejected by engine"
	}
	return recordDetail(m)
}

// GenerateFingerprint asks the service for the feature identifiers of m.
func (e *Engine) GenerateFingerprint(ctx context.Context, p *ecfp.Parameters, m *molecule.Molecule) (*ecfp.IdentifierSet, error) {
	var resp fingerprintResponse
	if err := e.client.post(ctx, fingerprintPath, ecfpRequest{Parameters: p, Molecule: toDTO(m)}, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFingerprintGenerationFailed, "failed to generate fingerprint").
			WithDetail(failureDetail(m, err))
	}
	return ecfp.NewIdentifierSet(resp.Identifiers...), nil
}

// BuildLookup asks the service for every circular substructure of m.
// Occurrences violating the feature invariants are rejected.
func (e *Engine) BuildLookup(ctx context.Context, p *ecfp.Parameters, m *molecule.Molecule) (*ecfp.LookupIndex, error) {
	var resp lookupResponse
	if err := e.client.post(ctx, lookupPath, ecfpRequest{Parameters: p, Molecule: toDTO(m)}, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFeatureLookupFailed, "failed to build feature lookup").
			WithDetail(failureDetail(m, err))
	}

	features := lo.Map(resp.Features, func(f featureDTO, _ int) ecfp.Feature {
		return ecfp.Feature{
			Identifier:   f.Identifier,
			BitPosition:  f.BitPosition,
			Diameter:     f.Diameter,
			CenterAtom:   f.CenterAtom,
			Substructure: f.Substructure,
		}
	})

	index := ecfp.NewLookupIndex()
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFeatureLookupFailed, "engine returned an invalid feature").
				WithDetail(recordDetail(m))
		}
		index.Add(f)
	}
	return index, nil
}

// RenderSMARTS asks the service to export s as SMARTS.
func (e *Engine) RenderSMARTS(ctx context.Context, s ecfp.Substructure) (string, error) {
	var resp smartsResponse
	if err := e.client.post(ctx, smartsPath, smartsRequest{Substructure: s}, &resp); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSMARTSExportFailed, "failed to export SMARTS")
	}
	if resp.SMARTS == "" {
		return "", errors.New(errors.ErrCodeSMARTSExportFailed, "failed to export SMARTS").
			WithDetail("engine returned an empty pattern")
	}
	return resp.SMARTS, nil
}
