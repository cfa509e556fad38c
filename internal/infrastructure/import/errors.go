package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Row error codes
const (
	ErrCodeImportMalformedRow      = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeImportRequiredField     = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeImportInvalidValue      = "ERR_IMPORT_INVALID_VALUE"
	ErrCodeImportDuplicateInFile   = "ERR_IMPORT_DUPLICATE_IN_FILE"
	ErrCodeImportDuplicateExisting = "ERR_IMPORT_DUPLICATE_EXISTING"
)

var (
	ErrEmptyFile       = errors.New("CSV file is empty")
	ErrInvalidEncoding = errors.New("CSV file is not valid UTF-8")
	ErrMissingHeader   = errors.New("CSV file has no header row")
)

// MissingColumnsError lists required header columns that are absent
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "CSV header is missing required columns: " + strings.Join(e.Columns, ", ")
}

// RowError rejects one row of an import
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
}

// NewRowError builds a RowError without an offending value
func NewRowError(row int, column, code, message string) RowError {
	return RowError{Row: row, Column: column, Code: code, Message: message}
}

// WithValue returns a copy of e carrying the offending value
func (e RowError) WithValue(v string) RowError {
	e.Value = v
	return e
}

// defaultErrorLimit bounds how many row errors are kept in full
const defaultErrorLimit = 100

// ErrorLog keeps the first row errors of an import up to a limit and counts
// the rest. Every rejected row is remembered regardless of the limit.
type ErrorLog struct {
	kept     []RowError
	rejected map[int]struct{}
	limit    int
	total    int
}

// NewErrorLog creates a log keeping at most limit errors
func NewErrorLog(limit int) *ErrorLog {
	if limit <= 0 {
		limit = defaultErrorLimit
	}
	return &ErrorLog{rejected: map[int]struct{}{}, limit: limit}
}

// Add records err
func (l *ErrorLog) Add(err RowError) {
	l.total++
	l.rejected[err.Row] = struct{}{}
	if len(l.kept) < l.limit {
		l.kept = append(l.kept, err)
	}
}

func (l *ErrorLog) required(row int, column string) {
	l.Add(NewRowError(row, column, ErrCodeImportRequiredField, "value is required"))
}

func (l *ErrorLog) invalid(row int, column, message, value string) {
	l.Add(NewRowError(row, column, ErrCodeImportInvalidValue, message).WithValue(value))
}

// Errors returns the kept errors in insertion order
func (l *ErrorLog) Errors() []RowError { return l.kept }

// Total counts every error, kept or not
func (l *ErrorLog) Total() int { return l.total }

// Empty reports whether nothing was rejected
func (l *ErrorLog) Empty() bool { return l.total == 0 }

// Rejected reports whether row has an error
func (l *ErrorLog) Rejected(row int) bool {
	_, ok := l.rejected[row]
	return ok
}

// Truncated reports whether errors past the limit were dropped
func (l *ErrorLog) Truncated() bool { return l.total > len(l.kept) }
