// Package csvimport reads and writes the CSV interchange format of field
// mapping tables.
package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// encodingWindow is how much of the input is checked for valid UTF-8
const encodingWindow = 4096

// Reader yields the data rows of a CSV document keyed by lowercased header.
// The header row is consumed by NewReader.
type Reader struct {
	csv     *csv.Reader
	trim    bool
	columns []string
	index   map[string]int
	line    int
	count   int
}

// Option configures a Reader
type Option func(*Reader)

// WithDelimiter sets the field separator; the default is a comma
func WithDelimiter(d rune) Option {
	return func(r *Reader) { r.csv.Comma = d }
}

// WithTrimSpace controls whitespace trimming around values; on by default
func WithTrimSpace(trim bool) Option {
	return func(r *Reader) {
		r.trim = trim
		r.csv.TrimLeadingSpace = trim
	}
}

// NewReader prepares src for reading and consumes its header row. A leading
// UTF-8 byte order mark is dropped.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	buf := bufio.NewReaderSize(src, encodingWindow)
	if err := checkEncoding(buf); err != nil {
		return nil, err
	}

	cr := csv.NewReader(buf)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	// trailing optional columns may be omitted
	cr.FieldsPerRecord = -1

	r := &Reader{csv: cr, trim: true, index: map[string]int{}}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func checkEncoding(buf *bufio.Reader) error {
	head, err := buf.Peek(encodingWindow)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read csv: %w", err)
	}
	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = buf.Discard(len(utf8BOM))
		head = head[len(utf8BOM):]
	}
	if len(bytes.TrimSpace(head)) == 0 {
		return ErrEmptyFile
	}
	if len(head) >= encodingWindow-len(utf8BOM) {
		// the window may cut a multi-byte rune in half
		for i := 0; i < utf8.UTFMax && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	if !utf8.Valid(head) {
		return ErrInvalidEncoding
	}
	return nil
}

func (r *Reader) readHeader() error {
	record, err := r.csv.Read()
	if err == io.EOF || (err == nil && len(record) == 0) {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	r.columns = make([]string, len(record))
	for i, h := range record {
		name := strings.ToLower(strings.TrimSpace(h))
		r.columns[i] = name
		if _, dup := r.index[name]; !dup {
			r.index[name] = i
		}
	}
	r.line = 1
	return nil
}

// Columns returns the lowercased header names in file order
func (r *Reader) Columns() []string { return r.columns }

// Has reports whether the header names column, ignoring case
func (r *Reader) Has(column string) bool {
	_, ok := r.index[strings.ToLower(column)]
	return ok
}

// Missing returns the columns of required absent from the header
func (r *Reader) Missing(required ...string) []string {
	var out []string
	for _, c := range required {
		if !r.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Row is one data row. LineNumber counts the header as line 1.
type Row struct {
	LineNumber int
	Data       map[string]string
}

// Get returns the value of column, ignoring case
func (row *Row) Get(column string) string {
	return row.Data[strings.ToLower(column)]
}

// IsEmpty reports whether every value of the row is blank
func (row *Row) IsEmpty() bool {
	for _, v := range row.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// Next returns the next data row, or io.EOF
func (r *Reader) Next() (*Row, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, err
	}
	r.line++
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	r.count++

	row := &Row{LineNumber: r.line, Data: make(map[string]string, len(r.index))}
	for name, i := range r.index {
		var v string
		if i < len(record) {
			v = record[i]
		}
		if r.trim {
			v = strings.TrimSpace(v)
		}
		row.Data[name] = v
	}
	return row, nil
}

// Rows drains the reader. Blank rows are dropped; a malformed row goes to
// onError (when set) and reading carries on.
func (r *Reader) Rows(onError func(line int, err error)) []*Row {
	var rows []*Row
	for {
		row, err := r.Next()
		switch {
		case err == io.EOF:
			return rows
		case err != nil:
			if onError != nil {
				onError(r.line, err)
			}
		case !row.IsEmpty():
			rows = append(rows, row)
		}
	}
}

// Count is the number of data rows read so far, blank ones included
func (r *Reader) Count() int { return r.count }

// Write emits header and then records as CSV
func Write(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	return cw.WriteAll(records)
}
