package lookup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/ecfplookup/internal/domain/molecule"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

// IdentifierResolver picks the display id printed with every feature line of
// a molecule.  UseName takes precedence over Property; with neither set the
// 1-based read counter is used.  A multi-line property value is joined into
// one line so every occurrence stays on a single output line.
type IdentifierResolver struct {
	UseName  bool
	Property string
}

// Resolve returns the display id of m, the count-th molecule read.
func (r IdentifierResolver) Resolve(count int, m *molecule.Molecule) (string, error) {
	switch {
	case r.UseName:
		return m.Name, nil
	case r.Property != "":
		v, ok := m.Property(r.Property)
		if !ok {
			return "", errors.New(errors.ErrCodeMoleculePropertyMissing, "molecule property not found").
				WithDetail(fmt.Sprintf("record %d: property %q, available: [%s]",
					count, r.Property, strings.Join(m.PropertyNames(), ", ")))
		}
		return singleLine(v), nil
	default:
		return strconv.Itoa(count), nil
	}
}

// singleLine joins the lines of v with a space, dropping empty ones.
func singleLine(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == '\r' })
	return strings.Join(parts, " ")
}

// Mode names the active strategy for log output.
func (r IdentifierResolver) Mode() string {
	switch {
	case r.UseName:
		return "name"
	case r.Property != "":
		return "property:" + r.Property
	default:
		return "count"
	}
}
