package lookup

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"syscall"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Line is one feature occurrence ready for output.
type Line struct {
	SMARTS      string
	ID          string
	Identifier  int32
	BitPosition int
	Diameter    int
	CenterAtom  int
}

// FormatLine renders l as
//
//	<SMARTS> <ID> ECFPID: <id> ECFPBIT: <bit> DIA: <diameter> ATOM: <atom>
//
// without a trailing newline.
func FormatLine(l Line) string {
	var sb strings.Builder
	sb.Grow(len(l.SMARTS) + len(l.ID) + 64)
	sb.WriteString(l.SMARTS)
	sb.WriteByte(' ')
	sb.WriteString(l.ID)
	sb.WriteString(" ECFPID: ")
	sb.WriteString(strconv.FormatInt(int64(l.Identifier), 10))
	sb.WriteString(" ECFPBIT: ")
	sb.WriteString(strconv.Itoa(l.BitPosition))
	sb.WriteString(" DIA: ")
	sb.WriteString(strconv.Itoa(l.Diameter))
	sb.WriteString(" ATOM: ")
	sb.WriteString(strconv.Itoa(l.CenterAtom))
	return sb.String()
}

// LineSink receives formatted feature lines.
type LineSink interface {
	Report(l Line) error
	Flush() error
}

// Reporter writes feature lines to a buffered stream.
type Reporter struct {
	w *bufio.Writer
}

var _ LineSink = (*Reporter)(nil)

// NewReporter buffers output to w.  Flush must be called before exit.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: bufio.NewWriter(w)}
}

// Report writes one line.
func (r *Reporter) Report(l Line) error {
	if _, err := r.w.WriteString(FormatLine(l)); err != nil {
		return outputError(err)
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return outputError(err)
	}
	return nil
}

// Flush writes any buffered output.
func (r *Reporter) Flush() error {
	if err := r.w.Flush(); err != nil {
		return outputError(err)
	}
	return nil
}

func outputError(err error) error {
	return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to write output")
}

// IsBrokenPipe reports whether err means the reader of stdout went away.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}
