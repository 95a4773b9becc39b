// Package molio streams molecule records from a byte stream.  It splits the
// stream into records and extracts what the tool needs without interpreting
// chemistry: record title, data items and the raw record text.  MDL SD files
// and SMILES files are supported, optionally gzip or zstd compressed.
package molio

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/ecfplookup/internal/domain/molecule"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

const (
	sdfRecordEnd = "$$$$"
	molBlockEnd  = "M  END"

	// sniffLines is how many lines format detection looks at.
	sniffLines = 4
)

// dataItemName extracts the field name from an SD data header such as
// "> <CHEMBL_ID>" or ">  <MW>  (12)".
var dataItemName = regexp.MustCompile(`<([^>]*)>`)

// Option configures a Reader.
type Option func(*Reader)

// WithFormat forces the record format instead of detecting it.
func WithFormat(f molecule.Format) Option {
	return func(r *Reader) {
		r.format = f
	}
}

// Reader yields molecule records one at a time.  It is not restartable and
// not safe for concurrent use.
type Reader struct {
	br          *bufio.Reader
	closer      io.Closer
	compression Compression
	format      molecule.Format

	pending []string // lines read ahead during format detection
	lineNo  int
	count   int
	err     error
}

// NewReader wraps r.  Compressed input is detected by magic bytes.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	raw := bufio.NewReader(r)
	c := detectCompression(raw)
	dr, closer, err := openDecompressor(raw, c)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "cannot open compressed input").
			WithDetail(string(c))
	}

	rd := &Reader{
		br:          raw,
		closer:      closer,
		compression: c,
	}
	if c != CompressionNone {
		rd.br = bufio.NewReader(dr)
	}
	for _, opt := range opts {
		opt(rd)
	}
	if rd.format != "" && !rd.format.IsValid() {
		return nil, errors.New(errors.ErrCodeMoleculeInvalidFormat, "unsupported molecule format").
			WithDetail(rd.format.String())
	}
	return rd, nil
}

// Compression reports the detected stream compression.
func (r *Reader) Compression() Compression { return r.compression }

// Format reports the record format; empty until the first Read when
// detection is pending.
func (r *Reader) Format() molecule.Format { return r.format }

// Count returns the number of records yielded so far.
func (r *Reader) Count() int { return r.count }

// Close releases decompressor resources.  It does not close the underlying
// stream.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Read returns the next molecule, io.EOF when the stream is exhausted, or an
// ErrCodeMoleculeParsingFailed error for a malformed record.  After an error
// every subsequent call returns the same error.
func (r *Reader) Read() (*molecule.Molecule, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.format == "" {
		if err := r.detectFormat(); err != nil {
			r.err = err
			return nil, err
		}
	}

	var (
		m   *molecule.Molecule
		err error
	)
	switch r.format {
	case molecule.FormatSMILES:
		m, err = r.readSMILES()
	default:
		m, err = r.readSDF()
	}
	if err != nil {
		r.err = err
		return nil, err
	}
	return m, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Line handling
// ─────────────────────────────────────────────────────────────────────────────

// nextLine returns the next line without its terminator.  ok is false at end
// of input.
func (r *Reader) nextLine() (line string, ok bool, err error) {
	if len(r.pending) > 0 {
		line, r.pending = r.pending[0], r.pending[1:]
		r.lineNo++
		return line, true, nil
	}
	s, rerr := r.br.ReadString('\n')
	if rerr != nil && rerr != io.EOF {
		return "", false, errors.Wrap(rerr, errors.ErrCodeMoleculeParsingFailed, "failed to read input").
			WithDetail(fmt.Sprintf("line %d", r.lineNo+1))
	}
	if s == "" && rerr == io.EOF {
		return "", false, nil
	}
	r.lineNo++
	return strings.TrimRight(s, "\r\n"), true, nil
}

// detectFormat looks at the first lines of the stream.  A molfile counts line
// in position four, or an SD terminator or M  END among them, selects SDF;
// anything else is read as SMILES.
func (r *Reader) detectFormat() error {
	for len(r.pending) < sniffLines {
		s, rerr := r.br.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return errors.Wrap(rerr, errors.ErrCodeMoleculeParsingFailed, "failed to read input")
		}
		if s == "" && rerr == io.EOF {
			break
		}
		r.pending = append(r.pending, strings.TrimRight(s, "\r\n"))
		if rerr == io.EOF {
			break
		}
	}

	r.format = molecule.FormatSMILES
	if len(r.pending) == sniffLines && isCountsLine(r.pending[3]) {
		r.format = molecule.FormatSDF
		return nil
	}
	for _, l := range r.pending {
		if l == sdfRecordEnd || strings.HasPrefix(l, molBlockEnd) {
			r.format = molecule.FormatSDF
			return nil
		}
	}
	return nil
}

// isCountsLine reports whether l looks like a molfile counts line.
func isCountsLine(l string) bool {
	if strings.Contains(l, "V2000") || strings.Contains(l, "V3000") {
		return true
	}
	if len(l) < 6 {
		return false
	}
	_, errA := strconv.Atoi(strings.TrimSpace(l[0:3]))
	_, errB := strconv.Atoi(strings.TrimSpace(l[3:6]))
	return errA == nil && errB == nil
}

func (r *Reader) parseError(msg string) error {
	return errors.New(errors.ErrCodeMoleculeParsingFailed, "failed to parse molecule").
		WithDetail(fmt.Sprintf("record %d, line %d: %s", r.count+1, r.lineNo, msg))
}

// ─────────────────────────────────────────────────────────────────────────────
// SMILES
// ─────────────────────────────────────────────────────────────────────────────

func (r *Reader) readSMILES() (*molecule.Molecule, error) {
	for {
		line, ok, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		smiles, name := trimmed, ""
		if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
			smiles, name = trimmed[:i], strings.TrimSpace(trimmed[i+1:])
		}
		if err := molecule.ValidateSMILES(smiles); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "failed to parse molecule").
				WithDetail(fmt.Sprintf("record %d, line %d", r.count+1, r.lineNo))
		}

		m, err := molecule.NewMolecule(r.count+1, molecule.FormatSMILES, smiles, name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "failed to parse molecule")
		}
		r.count++
		return m, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// MDL SD file
// ─────────────────────────────────────────────────────────────────────────────

func (r *Reader) readSDF() (*molecule.Molecule, error) {
	var (
		lines    []string
		blank    = true
		finished bool
	)
	for {
		line, ok, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if strings.TrimRight(line, " ") == sdfRecordEnd {
			finished = true
			break
		}
		if strings.TrimSpace(line) != "" {
			blank = false
		}
		lines = append(lines, line)
	}
	if blank {
		if finished {
			return nil, r.parseError("empty record")
		}
		return nil, io.EOF
	}

	end := -1
	for i, l := range lines {
		if strings.HasPrefix(l, molBlockEnd) {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, r.parseError("missing M  END")
	}
	if end < 3 || !isCountsLine(lines[3]) {
		return nil, r.parseError("missing or invalid counts line")
	}

	source := strings.Join(lines[:end+1], "\n") + "\n"
	m, err := molecule.NewMolecule(r.count+1, molecule.FormatSDF, source, strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMoleculeParsingFailed, "failed to parse molecule")
	}
	parseDataItems(m, lines[end+1:])

	r.count++
	return m, nil
}

// parseDataItems reads "> <NAME>" headers and their value lines.  Values end
// at the first blank line; multi-line values are joined with "\n".
func parseDataItems(m *molecule.Molecule, lines []string) {
	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], ">") {
			continue
		}
		match := dataItemName.FindStringSubmatch(lines[i])
		if match == nil {
			continue
		}
		var value []string
		for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			i++
			value = append(value, lines[i])
		}
		m.SetProperty(match[1], strings.Join(value, "\n"))
	}
}
