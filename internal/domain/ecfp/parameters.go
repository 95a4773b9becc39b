// Package ecfp models Extended Connectivity Fingerprints as seen from the
// outside of a cheminformatics engine: the parameter set that drives
// generation, the set of feature identifiers a molecule produces, the
// per-molecule index from identifier to concrete substructure occurrences,
// and the Engine contract that computes all of them.
package ecfp

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Defaults and bounds
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLength      = 1024
	DefaultDiameter    = 4
	DefaultMinDiameter = 0

	MinLength   = 32
	MaxLength   = 65536
	MaxDiameter = 16

	// DefaultSource is reported as Parameters.Source when no file was given.
	DefaultSource = "default"
)

// DefaultAtomProperties is the classic ECFP atom invariant set.
var DefaultAtomProperties = []string{
	"AtomicNumber",
	"HeavyNeighborCount",
	"HCount",
	"FormalCharge",
	"IsRingAtom",
}

// Parameters controls fingerprint generation and feature lookup.  A value is
// built once per run and shared read-only by every engine call.
type Parameters struct {
	// Length is the folded fingerprint size in bits; bit positions are
	// identifiers reduced into [0, Length).
	Length int `mapstructure:"length" json:"length"`

	// Diameter is the largest circular neighborhood diameter (2 × radius).
	Diameter int `mapstructure:"diameter" json:"diameter"`

	// MinDiameter is the smallest diameter whose features are kept.
	MinDiameter int `mapstructure:"min_diameter" json:"min_diameter"`

	// Counts keeps the multiplicity of identifiers that collide.
	Counts bool `mapstructure:"counts" json:"counts"`

	// AtomProperties lists the atom invariants hashed into initial
	// identifiers.  Their meaning is defined by the engine.
	AtomProperties []string `mapstructure:"atom_properties" json:"atom_properties"`

	// Source names where the parameters came from (a file path or "default").
	Source string `mapstructure:"-" json:"-"`
}

// DefaultParameters returns the built-in parameter set.
func DefaultParameters() *Parameters {
	return &Parameters{
		Length:         DefaultLength,
		Diameter:       DefaultDiameter,
		MinDiameter:    DefaultMinDiameter,
		AtomProperties: append([]string(nil), DefaultAtomProperties...),
		Source:         DefaultSource,
	}
}

// Validate checks the parameter set for internal consistency.
func (p *Parameters) Validate() error {
	if p.Length < MinLength || p.Length > MaxLength || bits.OnesCount(uint(p.Length)) != 1 {
		return errors.Configuration("invalid fingerprint length").
			WithDetail(fmt.Sprintf("length=%d, expected a power of two in [%d, %d]", p.Length, MinLength, MaxLength))
	}
	if p.Diameter < 0 || p.Diameter > MaxDiameter || p.Diameter%2 != 0 {
		return errors.Configuration("invalid fingerprint diameter").
			WithDetail(fmt.Sprintf("diameter=%d, expected an even number in [0, %d]", p.Diameter, MaxDiameter))
	}
	if p.MinDiameter < 0 || p.MinDiameter%2 != 0 || p.MinDiameter > p.Diameter {
		return errors.Configuration("invalid minimum diameter").
			WithDetail(fmt.Sprintf("min_diameter=%d, expected an even number in [0, %d]", p.MinDiameter, p.Diameter))
	}
	if len(p.AtomProperties) == 0 {
		return errors.Configuration("atom_properties must not be empty")
	}
	if dups := lo.FindDuplicates(p.AtomProperties); len(dups) > 0 {
		return errors.Configuration("duplicate atom properties").
			WithDetail(strings.Join(dups, ", "))
	}
	return nil
}

// String renders the parameters for diagnostics.
func (p *Parameters) String() string {
	return fmt.Sprintf("ECFP(length=%d diameter=%d min_diameter=%d counts=%t atoms=%s source=%s)",
		p.Length, p.Diameter, p.MinDiameter, p.Counts, strings.Join(p.AtomProperties, "+"), p.Source)
}

// ─────────────────────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────────────────────

// LoadParameters reads a parameter file.  YAML, JSON and TOML are chosen by
// extension; any other extension is read as YAML.  Keys not listed on
// Parameters are rejected, missing keys take their defaults, and the result
// is validated.  Every failure is an ErrCodeConfiguration error.
func LoadParameters(path string) (*Parameters, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "cannot read fingerprint configuration").
			WithDetail(path)
	}
	if info.IsDir() {
		return nil, errors.Configuration("fingerprint configuration is a directory").WithDetail(path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !lo.Contains(viper.SupportedExts, ext) {
		v.SetConfigType("yaml")
	}

	v.SetDefault("length", DefaultLength)
	v.SetDefault("diameter", DefaultDiameter)
	v.SetDefault("min_diameter", DefaultMinDiameter)
	v.SetDefault("counts", false)
	v.SetDefault("atom_properties", DefaultAtomProperties)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "malformed fingerprint configuration").
			WithDetail(path)
	}

	p := &Parameters{}
	if err := v.UnmarshalExact(p); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "malformed fingerprint configuration").
			WithDetail(path)
	}
	p.Source = path

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
