// Package trace defines branch traces used to drive the predictor.
//
// A trace is a text file with one branch per line:
//
//	<thread> <pc> <C|U> <T|N> [target]
//
// Numbers use Go literal syntax, so addresses are usually written in hex with
// a 0x prefix. Blank lines and lines starting with # are ignored.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the kind of a branch.
type Kind int

// Branch kinds.
const (
	Conditional Kind = iota
	Unconditional
)

func (k Kind) String() string {
	switch k {
	case Conditional:
		return "C"
	case Unconditional:
		return "U"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Record is one dynamic branch on the correct path of execution.
type Record struct {
	Thread int
	PC     uint64
	Kind   Kind
	Taken  bool
	Target uint64
}

// Source yields records in program order. Next returns io.EOF after the last
// record.
type Source interface {
	Next() (Record, error)
}

// Reader parses the text trace format.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next record.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		rec, err := parseRecord(strings.Fields(text))
		if err != nil {
			return Record{}, errors.Wrapf(err, "trace line %d", r.line)
		}

		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Record{}, errors.Wrap(err, "failed to read trace")
	}

	return Record{}, io.EOF
}

func parseRecord(fields []string) (Record, error) {
	if len(fields) < 4 || len(fields) > 5 {
		return Record{}, errors.Errorf("expected 4 or 5 fields, got %d", len(fields))
	}

	var rec Record

	thread, err := strconv.Atoi(fields[0])
	if err != nil || thread < 0 {
		return Record{}, errors.Errorf("invalid thread %q", fields[0])
	}
	rec.Thread = thread

	rec.PC, err = strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return Record{}, errors.Errorf("invalid pc %q", fields[1])
	}

	switch fields[2] {
	case "C", "c":
		rec.Kind = Conditional
	case "U", "u":
		rec.Kind = Unconditional
	default:
		return Record{}, errors.Errorf("invalid kind %q", fields[2])
	}

	switch fields[3] {
	case "T", "t", "1":
		rec.Taken = true
	case "N", "n", "0":
		rec.Taken = false
	default:
		return Record{}, errors.Errorf("invalid outcome %q", fields[3])
	}

	if rec.Kind == Unconditional && !rec.Taken {
		return Record{}, errors.New("unconditional branch must be taken")
	}

	if len(fields) == 5 {
		rec.Target, err = strconv.ParseUint(fields[4], 0, 64)
		if err != nil {
			return Record{}, errors.Errorf("invalid target %q", fields[4])
		}
	}

	return rec, nil
}

// Write writes records in the text trace format.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)

	for _, rec := range records {
		outcome := "N"
		if rec.Taken {
			outcome = "T"
		}

		_, err := fmt.Fprintf(bw, "%d 0x%x %s %s 0x%x\n",
			rec.Thread, rec.PC, rec.Kind, outcome, rec.Target)
		if err != nil {
			return errors.Wrap(err, "failed to write trace")
		}
	}

	return errors.Wrap(bw.Flush(), "failed to write trace")
}

// ReadAll reads every record from src.
func ReadAll(src Source) ([]Record, error) {
	var records []Record

	for {
		rec, err := src.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}

		records = append(records, rec)
	}
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []Record
	pos     int
}

// NewSliceSource creates a Source over records.
func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record.
func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}

	rec := s.records[s.pos]
	s.pos++

	return rec, nil
}
