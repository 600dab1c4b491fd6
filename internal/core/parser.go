package core

// parser.go turns uploaded bytes into a lazy, single-pass sequence of RawRow.
//
// Parsing happens in three steps:
//  1. Sniff: the first bytes are checked against the declared format
//     (mimetype) so a PDF renamed to .csv fails before any row is read
//  2. Decode: delimited text is BOM-decoded and sanitized; spreadsheets are
//     opened with excelize and streamed row by row from the first sheet
//  3. Header: the first non-blank record names the columns; every later
//     record maps to those names by position
//
// Rows whose cell count differs from the header are still yielded, flagged
// with ColumnMismatch, so the validator can report them with every other
// problem on the row.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// sniffLen is the number of leading bytes inspected for content detection.
const sniffLen = 3072

// HeaderIndex maps normalized column names to their position in a row.
type HeaderIndex map[string]int

// Header is the parsed header row of a file.
type Header struct {
	names []string
	index HeaderIndex
}

func newHeader(cells []string) *Header {
	names := make([]string, len(cells))
	for i, c := range cells {
		names[i] = CleanCell(c)
	}
	return &Header{names: names, index: MakeHeaderIndex(names)}
}

// Names returns the header cells as written in the file.
func (h *Header) Names() []string {
	return append([]string(nil), h.names...)
}

// Len returns the number of header columns.
func (h *Header) Len() int {
	return len(h.names)
}

// Index returns the position of a column, matched case-insensitively.
func (h *Header) Index(name string) (int, bool) {
	i, ok := h.index[normalizeHeader(name)]
	return i, ok
}

// RawRow is one data row as read from the file. It is immutable.
type RawRow struct {
	Row            int      // 1-based data row ordinal, blank rows excluded
	Line           int      // 1-based physical line (or sheet row)
	Cells          []string // cells in file order
	Source         Format
	ColumnMismatch bool // cell count differs from the header

	header *Header
}

// Header returns the header the row was read under.
func (r RawRow) Header() *Header {
	return r.header
}

// Value returns the raw cell under the named column.
func (r RawRow) Value(name string) (string, bool) {
	if r.header == nil {
		return "", false
	}
	i, ok := r.header.Index(name)
	if !ok || i >= len(r.Cells) {
		return "", false
	}
	return r.Cells[i], true
}

// rowSource yields raw records with their physical line.
type rowSource interface {
	next() (cells []string, line int, err error)
	close() error
}

// RowReader streams RawRows from a parsed file.
type RowReader struct {
	src     rowSource
	header  *Header
	format  Format
	counter *StreamingCountingReader
	rows    int
	err     error
}

// Parse sniffs r against the declared format, reads the header row and
// returns a reader positioned at the first data row. It fails with a
// *FormatError when the file is empty, unreadable, malformed, or its
// content does not match the declared format.
//
// A file holding only a header row is valid and yields no rows.
func Parse(r io.Reader, format Format) (*RowReader, error) {
	if !format.Valid() {
		return nil, &FormatError{Reason: ReasonUnsupported, Err: fmt.Errorf("format %q", format)}
	}

	counter := NewStreamingCountingReader(r)
	br := bufio.NewReaderSize(counter, sniffLen)

	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, &FormatError{Reason: ReasonUnreadable, Err: err}
	}
	if err := sniff(head, len(head) < sniffLen, format); err != nil {
		return nil, err
	}

	var src rowSource
	switch format {
	case FormatXLSX:
		src, err = newSheetSource(br)
		if err != nil {
			return nil, err
		}
	case FormatTSV:
		src = newDelimitedSource(br, '\t', true)
	default:
		src = newDelimitedSource(br, ',', false)
	}

	rr := &RowReader{src: src, format: format, counter: counter}
	if err := rr.readHeader(); err != nil {
		src.close()
		return nil, err
	}
	return rr, nil
}

// sniff rejects content that cannot be the declared format.
func sniff(head []byte, complete bool, format Format) error {
	if len(head) == 0 || (complete && isBlankContent(head)) {
		return &FormatError{Reason: ReasonEmpty}
	}

	detected := mimetype.Detect(head)

	if format == FormatXLSX {
		if descendsFrom(detected, "application/zip") {
			return nil
		}
		return &FormatError{Reason: ReasonMismatch, Err: fmt.Errorf("declared xlsx, detected %s", detected.String())}
	}

	if descendsFrom(detected, "text/plain") {
		return nil
	}
	if bytes.IndexByte(head, 0) >= 0 && !descendsFrom(detected, "application/zip") {
		return &FormatError{Reason: ReasonEncoding, Err: errors.New("binary or unsupported text encoding")}
	}
	return &FormatError{Reason: ReasonMismatch, Err: fmt.Errorf("declared %s, detected %s", format, detected.String())}
}

// descendsFrom reports whether m is mime or one of its descendants.
func descendsFrom(m *mimetype.MIME, mime string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

// isBlankContent reports whether data holds nothing but BOMs and whitespace.
func isBlankContent(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = bytes.TrimPrefix(data, []byte{0xFF, 0xFE})
	data = bytes.TrimPrefix(data, []byte{0xFE, 0xFF})
	return len(bytes.Trim(data, " \t\r\n\x00")) == 0
}

func (r *RowReader) readHeader() error {
	for {
		cells, _, err := r.src.next()
		if err == io.EOF {
			return &FormatError{Reason: ReasonEmpty, Err: errors.New("no header row")}
		}
		if err != nil {
			return err
		}
		if isBlankRow(cells) {
			continue
		}
		if r.format == FormatXLSX {
			cells = trimTrailingBlank(cells)
		}
		r.header = newHeader(cells)
		return nil
	}
}

// Header returns the parsed header row.
func (r *RowReader) Header() *Header {
	return r.header
}

// Format returns the format the reader was opened with.
func (r *RowReader) Format() Format {
	return r.format
}

// BytesRead returns the number of raw bytes consumed so far.
func (r *RowReader) BytesRead() int64 {
	return r.counter.BytesRead
}

// Next returns the next non-blank data row, or io.EOF after the last one.
// Any other error is a *FormatError and ends the stream.
func (r *RowReader) Next() (RawRow, error) {
	if r.err != nil {
		return RawRow{}, r.err
	}

	for {
		cells, line, err := r.src.next()
		if err != nil {
			r.err = err
			return RawRow{}, err
		}
		if isBlankRow(cells) {
			continue
		}

		width := r.header.Len()
		if r.format == FormatXLSX {
			cells = fitSheetRow(cells, width)
		}

		r.rows++
		return RawRow{
			Row:            r.rows,
			Line:           line,
			Cells:          cells,
			Source:         r.format,
			ColumnMismatch: len(cells) != width,
			header:         r.header,
		}, nil
	}
}

// All returns the remaining rows as a single-pass sequence. Iteration stops
// after the first error, which is yielded with a zero RawRow.
func (r *RowReader) All() iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		for {
			row, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(RawRow{}, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Close releases resources held by the underlying decoder.
func (r *RowReader) Close() error {
	return r.src.close()
}

// isBlankRow returns true if every cell is empty or whitespace.
func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}

// fitSheetRow pads rows that the spreadsheet stored without their trailing
// empty cells and drops blank cells past the header width.
func fitSheetRow(cells []string, width int) []string {
	if len(cells) > width {
		cells = trimTrailingBlank(cells)
		if len(cells) < width {
			cells = append(cells, make([]string, width-len(cells))...)
		}
		return cells
	}
	if len(cells) < width {
		padded := make([]string, width)
		copy(padded, cells)
		return padded
	}
	return cells
}

// delimitedSource reads CSV or TSV records.
type delimitedSource struct {
	cr *csv.Reader
}

func newDelimitedSource(r io.Reader, comma rune, lazyQuotes bool) *delimitedSource {
	cr := csv.NewReader(WrapForStreaming(r))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = lazyQuotes
	return &delimitedSource{cr: cr}
}

func (s *delimitedSource) next() ([]string, int, error) {
	rec, err := s.cr.Read()
	if err == io.EOF {
		return nil, 0, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, 0, &FormatError{Reason: ReasonMalformed, Line: pe.Line, Err: pe.Err}
		}
		return nil, 0, &FormatError{Reason: ReasonUnreadable, Err: err}
	}
	line, _ := s.cr.FieldPos(0)
	return rec, line, nil
}

func (s *delimitedSource) close() error {
	return nil
}

// sheetSource streams rows from the first worksheet of a workbook.
type sheetSource struct {
	file *excelize.File
	rows *excelize.Rows
	line int
}

func newSheetSource(r io.Reader) (*sheetSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Reason: ReasonMalformed, Err: err}
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, &FormatError{Reason: ReasonEmpty, Err: errors.New("workbook has no sheets")}
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, &FormatError{Reason: ReasonMalformed, Err: err}
	}

	return &sheetSource{file: f, rows: rows}, nil
}

func (s *sheetSource) next() ([]string, int, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, 0, &FormatError{Reason: ReasonMalformed, Line: s.line + 1, Err: err}
		}
		return nil, 0, io.EOF
	}
	s.line++

	// Raw values keep phone numbers and serial dates out of display formatting.
	cells, err := s.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, &FormatError{Reason: ReasonMalformed, Line: s.line, Err: err}
	}
	return cells, s.line, nil
}

func (s *sheetSource) close() error {
	rowsErr := s.rows.Close()
	fileErr := s.file.Close()
	return errors.Join(rowsErr, fileErr)
}
