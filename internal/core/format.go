package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the declared tabular format of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatTSV, FormatXLSX}
}

// ParseFormat accepts a format name, an extension with or without the dot,
// or a MIME type.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "csv", "text/csv":
		return FormatCSV, nil
	case "tsv", "tab", "text/tab-separated-values":
		return FormatTSV, nil
	case "xlsx", xlsxMIME:
		return FormatXLSX, nil
	}
	return "", &FormatError{Reason: ReasonUnsupported, Err: fmt.Errorf("format %q", s)}
}

// FormatFromFilename infers the format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", &FormatError{Reason: ReasonUnsupported, Err: fmt.Errorf("file %q has no extension", name)}
	}
	return ParseFormat(ext)
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatTSV, FormatXLSX:
		return true
	}
	return false
}

// ContentType returns the MIME type used when serving files of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatXLSX:
		return xlsxMIME
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}
