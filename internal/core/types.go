package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Target identifies the record schema a file is imported into.
type Target string

const (
	TargetCustomers Target = "customers"
	TargetOrders    Target = "orders"
	TargetShipments Target = "shipments"
)

// FieldType represents the expected data type for an import column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldAmount
	FieldBool
	FieldPhone
	FieldEmail
	FieldInteger
)

// FieldSpec defines validation rules for a single import column.
type FieldSpec struct {
	Name        string              // Column header name (matched case-insensitively)
	Type        FieldType           // Expected data type
	Required    bool                // Value must be present on every row
	EnumValues  []string            // Valid values for FieldEnum type
	Default     string              // Used when the column is absent or the cell is blank
	MaxLen      int                 // Maximum length for text fields (0 means unlimited)
	MaxDigits   int                 // Digits allowed before the decimal point for amounts (0 means MaxAmountDigits)
	Normalizer  func(string) string // Optional transformation applied before type checks
	Description string              // Shown in the template instructions sheet
}

// TargetInfo contains display information about an import target.
type TargetInfo struct {
	Key         Target   `json:"key"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Table       string   `json:"-"`
	Columns     []string `json:"columns"`
	Required    []string `json:"required"`
}

// BuildFunc turns coerced field values into a typed record and applies
// cross-field rules. Issues returned here have their Row set by the caller.
type BuildFunc func(f Fields) (Record, []FieldIssue)

// CopyRowFunc converts a record to a row of values for the COPY protocol.
// The returned slice must contain values in the same order as CopyColumns.
type CopyRowFunc func(rec Record) []any

// TargetDefinition contains everything needed to import one target.
type TargetDefinition struct {
	Info       TargetInfo
	FieldSpecs []FieldSpec
	Build      BuildFunc

	// CopyColumns lists database column names in the order CopyRow
	// returns values. The store appends its own bookkeeping columns.
	CopyColumns []string
	CopyRow     CopyRowFunc
}

// Spec returns the field spec with the given name.
func (d TargetDefinition) Spec(name string) (FieldSpec, bool) {
	for _, s := range d.FieldSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Key is the duplicate-detection identity of a record.
type Key string

// Record is the typed, normalized projection of a valid row.
type Record interface {
	Target() Target
	DuplicateKey() Key
}

// Severity grades a FieldIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FieldIssue is a single rule violation found in one row.
// Row 0 refers to the header row.
type FieldIssue struct {
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i FieldIssue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ErrorIssue builds an error-severity issue for a field.
func ErrorIssue(field, format string, args ...any) FieldIssue {
	return FieldIssue{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
}

// WarningIssue builds a warning-severity issue for a field.
func WarningIssue(field, format string, args ...any) FieldIssue {
	return FieldIssue{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
}

// CandidateRecord is a parsed, type-checked row awaiting a commit decision.
// Either Record is non-nil, or Issues contains at least one error.
type CandidateRecord struct {
	Row    int               `json:"row"`
	Line   int               `json:"line"`
	Target Target            `json:"target"`
	Values map[string]string `json:"values"`
	Issues []FieldIssue      `json:"issues,omitempty"`
	Record Record            `json:"-"`
}

// Valid reports whether the record can be imported.
func (c CandidateRecord) Valid() bool {
	return c.Record != nil && !c.HasErrors()
}

// HasErrors reports whether any issue has error severity.
func (c CandidateRecord) HasErrors() bool {
	for _, is := range c.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorSummary joins the error messages of the record for reporting.
func (c CandidateRecord) ErrorSummary() string {
	var msg string
	for _, is := range c.Issues {
		if is.Severity != SeverityError {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += is.String()
	}
	return msg
}

// ValidationResult summarizes a validate pass over an entire file.
type ValidationResult struct {
	Target    Target            `json:"target"`
	Columns   []string          `json:"columns"`
	IsValid   bool              `json:"isValid"`
	Errors    []FieldIssue      `json:"errors"`
	Warnings  []FieldIssue      `json:"warnings"`
	Preview   []CandidateRecord `json:"preview"`
	TotalRows int               `json:"totalRows"`
	ValidRows int               `json:"validRows"`
}

// InvalidRows returns the number of rows carrying at least one error.
func (r *ValidationResult) InvalidRows() int {
	return r.TotalRows - r.ValidRows
}

// ImportOptions control an execute call.
type ImportOptions struct {
	SkipDuplicates bool `json:"skipDuplicates"`
	BatchSize      int  `json:"batchSize"`
}

// DefaultBatchSize is the batch size used when none is given.
const DefaultBatchSize = 100

// DefaultImportOptions returns skipDuplicates=true and batchSize=100.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{SkipDuplicates: true, BatchSize: DefaultBatchSize}
}

// ErrInvalidOptions is returned for import options that cannot be honoured.
var ErrInvalidOptions = errors.New("invalid import options")

// Validate checks the options.
func (o ImportOptions) Validate() error {
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidOptions, o.BatchSize)
	}
	return nil
}

// RowError reports why a row was not imported.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes an execute call.
// TotalProcessed == SuccessfulInserts + FailedInserts + DuplicatesSkipped.
type ImportResult struct {
	Target            Target     `json:"target"`
	Success           bool       `json:"success"`
	TotalProcessed    int        `json:"totalProcessed"`
	SuccessfulInserts int        `json:"successfulInserts"`
	FailedInserts     int        `json:"failedInserts"`
	DuplicatesSkipped int        `json:"duplicatesSkipped"`
	Errors            []RowError `json:"errors"`
	Batches           int        `json:"batches"`
	Cancelled         bool       `json:"cancelled"`
	Incomplete        bool       `json:"incomplete"`
}

// Action is the duplicate resolver's decision for one record.
type Action struct {
	Skip   bool
	Reason string
}

// InsertAction marks a record for insertion.
func InsertAction() Action { return Action{} }

// SkipAction marks a record as skipped with a reason.
func SkipAction(reason string) Action { return Action{Skip: true, Reason: reason} }

// InsertOutcome is the per-record result of a batch write. A nil Err means ok.
type InsertOutcome struct {
	Err error
}

// Store is the system of record the pipeline commits into.
//
// Exists must answer for every key it is given in a single round trip.
// InsertBatch must be atomic per call where the backend supports it; it
// returns either an error for the whole batch, nil outcomes when every
// record was written, or one outcome per record.
type Store interface {
	Exists(ctx context.Context, target Target, keys []Key) (map[Key]bool, error)
	InsertBatch(ctx context.Context, target Target, records []Record) ([]InsertOutcome, error)
}

// File is an already-retrieved upload plus its declared format. Execute
// reads Reader twice, so it must be seekable; multipart uploads and
// *os.File both are.
type File struct {
	Name   string
	Format Format
	Reader io.ReadSeeker
	Size   int64
}

// ImportRun is a history entry for one execute call.
type ImportRun struct {
	ID                string        `json:"id"`
	Target            Target        `json:"target"`
	FileName          string        `json:"fileName"`
	Format            Format        `json:"format"`
	StartedAt         time.Time     `json:"startedAt"`
	Duration          time.Duration `json:"duration"`
	TotalProcessed    int           `json:"totalProcessed"`
	SuccessfulInserts int           `json:"successfulInserts"`
	FailedInserts     int           `json:"failedInserts"`
	DuplicatesSkipped int           `json:"duplicatesSkipped"`
	Cancelled         bool          `json:"cancelled"`
	Error             string        `json:"error,omitempty"`
	IPAddress         string        `json:"ipAddress,omitempty"`
	UserAgent         string        `json:"userAgent,omitempty"`
}

// RunRecorder persists import history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run ImportRun) error
	ListRuns(ctx context.Context, target Target, limit int) ([]ImportRun, error)
}

// Fields holds the coerced values of one row, keyed by field name.
// Accessors report false when the value is absent or failed coercion.
type Fields struct {
	values map[string]any
	failed map[string]bool
}

// NewFields returns an empty field set.
func NewFields() Fields {
	return Fields{values: make(map[string]any), failed: make(map[string]bool)}
}

// MarkFailed records that a present cell could not be coerced.
func (f Fields) MarkFailed(name string) {
	f.failed[name] = true
}

// Failed reports whether the field was present but failed coercion.
func (f Fields) Failed(name string) bool {
	return f.failed[name]
}

// Set stores a coerced value.
func (f Fields) Set(name string, v any) {
	f.values[name] = v
}

// Has reports whether the field holds a coerced value.
func (f Fields) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Text returns a string field, or "" when absent.
func (f Fields) Text(name string) string {
	s, _ := f.values[name].(string)
	return s
}

// Amount returns a decimal field.
func (f Fields) Amount(name string) (decimal.Decimal, bool) {
	d, ok := f.values[name].(decimal.Decimal)
	return d, ok
}

// AmountOrZero returns a decimal field or zero when absent.
func (f Fields) AmountOrZero(name string) decimal.Decimal {
	d, _ := f.Amount(name)
	return d
}

// Date returns a date field.
func (f Fields) Date(name string) (time.Time, bool) {
	t, ok := f.values[name].(time.Time)
	return t, ok
}

// Bool returns a boolean field.
func (f Fields) Bool(name string) (bool, bool) {
	b, ok := f.values[name].(bool)
	return b, ok
}

// Int returns an integer field.
func (f Fields) Int(name string) (int64, bool) {
	i, ok := f.values[name].(int64)
	return i, ok
}
