// Package molecule provides the in-memory form of one molecule record read
// from the input stream.  The structure itself (atoms, bonds, stereo) stays
// opaque: it travels as the raw record text and is interpreted only by the
// cheminformatics engine.  This package owns what the tool needs without an
// engine round trip: the record's name, its data properties, its format and
// its position in the stream.
package molecule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Format identifies the chemical interchange format of a record.
type Format string

const (
	// FormatSDF is an MDL molfile / SD file record (V2000 or V3000).
	FormatSDF Format = "sdf"
	// FormatSMILES is a single SMILES line with an optional name.
	FormatSMILES Format = "smiles"
)

// String returns the format name.
func (f Format) String() string { return string(f) }

// IsValid reports whether f is a supported record format.
func (f Format) IsValid() bool {
	return f == FormatSDF || f == FormatSMILES
}

// ParseFormat converts a user-supplied name into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sdf", "sd", "mol", "mdl":
		return FormatSDF, nil
	case "smiles", "smi":
		return FormatSMILES, nil
	default:
		return "", errors.New(errors.ErrCodeMoleculeInvalidFormat, "unsupported molecule format").
			WithDetail(fmt.Sprintf("format=%s", s))
	}
}

// Molecule is one record of the input stream.
type Molecule struct {
	// Index is the 1-based position of the record in the stream.
	Index int

	// Name is the record title (SD header line or the SMILES name column).
	// A record without a name has an empty Name.
	Name string

	// Format is the interchange format of Source.
	Format Format

	// Source is the record text handed to the engine, without data items.
	Source string

	props     map[string]string
	propOrder []string
}

// NewMolecule constructs a Molecule record.
func NewMolecule(index int, format Format, source, name string) (*Molecule, error) {
	if !format.IsValid() {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unsupported molecule format").
			WithDetail(fmt.Sprintf("format=%s", format))
	}
	if strings.TrimSpace(source) == "" {
		return nil, errors.InvalidParam("molecule source cannot be empty")
	}
	return &Molecule{
		Index:  index,
		Name:   name,
		Format: format,
		Source: source,
		props:  make(map[string]string),
	}, nil
}

// SetProperty stores a data property.  Setting an existing name replaces its
// value but keeps its original position.
func (m *Molecule) SetProperty(name, value string) {
	if m.props == nil {
		m.props = make(map[string]string)
	}
	if _, ok := m.props[name]; !ok {
		m.propOrder = append(m.propOrder, name)
	}
	m.props[name] = value
}

// Property returns the value of the named data property.  The boolean is
// false when the record carries no such property; an empty value with true
// means the property is present but blank.
func (m *Molecule) Property(name string) (string, bool) {
	v, ok := m.props[name]
	return v, ok
}

// PropertyNames returns property names in the order they appeared.
func (m *Molecule) PropertyNames() []string {
	out := make([]string, len(m.propOrder))
	copy(out, m.propOrder)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// SMILES sanity checks
// ─────────────────────────────────────────────────────────────────────────────

// validSMILESChars defines the allowed character set for SMILES notation.
// This is a lexical check only; chemical validity is the engine's concern.
var validSMILESChars = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#$/\\%.:*~]+$`)

// ValidateSMILES performs a lexical check of a SMILES string: allowed
// characters and balanced brackets.
func ValidateSMILES(smiles string) error {
	if smiles == "" {
		return errors.InvalidParam("SMILES string cannot be empty")
	}
	if !validSMILESChars.MatchString(smiles) {
		return errors.InvalidParam("SMILES contains invalid characters").
			WithDetail(fmt.Sprintf("smiles=%s", smiles))
	}
	return validateBrackets(smiles)
}

// validateBrackets checks that all brackets in the SMILES string are balanced.
func validateBrackets(smiles string) error {
	closers := map[rune]rune{
		')': '(',
		']': '[',
	}

	var stack []rune
	for _, ch := range smiles {
		switch ch {
		case '(', '[':
			stack = append(stack, ch)
		case ')', ']':
			if len(stack) == 0 || stack[len(stack)-1] != closers[ch] {
				return errors.InvalidParam("unmatched brackets in SMILES").
					WithDetail(fmt.Sprintf("smiles=%s", smiles))
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) != 0 {
		return errors.InvalidParam("unclosed brackets in SMILES").
			WithDetail(fmt.Sprintf("smiles=%s", smiles))
	}
	return nil
}
