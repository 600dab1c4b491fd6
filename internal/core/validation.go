package core

// validation.go provides row-level validation of parsed rows.
//
// Validation happens at two levels:
//  1. Header: columns the target does not know are reported once as warnings
//  2. Row: each cell is checked against its FieldSpec (presence, type,
//     format, enum values), then the target's Build func applies
//     cross-field rules and produces the typed Record
//
// Every rule runs for every row; a row can carry several issues at once.
// A row is importable only if none of its issues has error severity.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RowValidator validates rows of one file against a target definition.
// It is stateless between rows and safe to reuse for the whole file.
type RowValidator struct {
	def    TargetDefinition
	header *Header
	locale Locale
	pos    []int // header position per FieldSpec, -1 when absent
}

// NewRowValidator creates a validator for the given target and header.
func NewRowValidator(def TargetDefinition, header *Header, locale Locale) *RowValidator {
	pos := make([]int, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		pos[i] = -1
		if header == nil {
			continue
		}
		if p, ok := header.Index(spec.Name); ok {
			pos[i] = p
		}
	}
	return &RowValidator{def: def, header: header, locale: locale, pos: pos}
}

// HeaderIssues reports columns the target does not use. They are ignored
// on import so superset templates still work.
func (v *RowValidator) HeaderIssues() []FieldIssue {
	if v.header == nil {
		return nil
	}

	known := make(map[string]bool, len(v.def.FieldSpecs))
	for _, spec := range v.def.FieldSpecs {
		known[normalizeHeader(spec.Name)] = true
	}

	var issues []FieldIssue
	seen := make(map[string]bool)
	for _, name := range v.header.names {
		key := normalizeHeader(name)
		if key == "" || known[key] {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		issue := WarningIssue(name, "unknown column ignored")
		issues = append(issues, issue)
	}
	return issues
}

// Validate checks one row and returns its candidate record.
func (v *RowValidator) Validate(row RawRow) CandidateRecord {
	cand := CandidateRecord{
		Row:    row.Row,
		Line:   row.Line,
		Target: v.def.Info.Key,
		Values: make(map[string]string, len(v.def.FieldSpecs)),
	}

	if row.ColumnMismatch {
		width := 0
		if v.header != nil {
			width = v.header.Len()
		}
		cand.Issues = append(cand.Issues, ErrorIssue("",
			"column count mismatch (expected %d, got %d)", width, len(row.Cells)))
	}

	fields := NewFields()
	for i, spec := range v.def.FieldSpecs {
		p := v.pos[i]

		raw := ""
		present := p >= 0 && p < len(row.Cells)
		if present {
			raw = CleanCell(row.Cells[p])
		}
		if raw == "" {
			raw = spec.Default
		}

		if raw == "" {
			if spec.Required {
				msg := "required field is empty"
				if p < 0 {
					msg = "missing required column"
				}
				cand.Issues = append(cand.Issues, ErrorIssue(spec.Name, "%s", msg))
			}
			continue
		}

		if spec.Normalizer != nil {
			raw = spec.Normalizer(raw)
		}

		value, display, issues := v.coerce(raw, spec, row.Source)
		cand.Issues = append(cand.Issues, issues...)
		if value != nil {
			fields.Set(spec.Name, value)
			cand.Values[spec.Name] = display
		} else {
			fields.MarkFailed(spec.Name)
			cand.Values[spec.Name] = raw
		}
	}

	rec, issues := v.def.Build(fields)
	cand.Issues = append(cand.Issues, issues...)

	for i := range cand.Issues {
		cand.Issues[i].Row = row.Row
	}

	if !cand.HasErrors() {
		cand.Record = rec
	}
	return cand
}

// coerce converts a non-empty cell to the spec's type. It returns a nil
// value when the cell fails coercion.
func (v *RowValidator) coerce(raw string, spec FieldSpec, source Format) (any, string, []FieldIssue) {
	switch spec.Type {
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ev, ev, nil
			}
		}
		return nil, "", []FieldIssue{ErrorIssue(spec.Name,
			"invalid value %q, must be one of: %s", raw, strings.Join(spec.EnumValues, ", "))}

	case FieldDate:
		t, err := v.locale.ParseDate(raw)
		if err != nil && source == FormatXLSX {
			t, err = ParseExcelDate(raw)
		}
		if err != nil {
			return nil, "", []FieldIssue{ErrorIssue(spec.Name,
				"invalid date %q (use %s or YYYY-MM-DD)", raw, dateHint(v.locale.DateOrder))}
		}
		return t, t.Format("2006-01-02"), nil

	case FieldAmount:
		digits := spec.MaxDigits
		if digits <= 0 || digits > MaxAmountDigits {
			digits = MaxAmountDigits
		}
		d, err := ParseAmount(raw)
		switch {
		case errors.Is(err, ErrNegativeAmount):
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "amount must not be negative (got %s)", d.StringFixed(2))}
		case errors.Is(err, ErrAmountTooLarge) || (err == nil && !AmountFits(d, digits)):
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "amount too large (at most %d digits before the decimal point)", digits)}
		case err != nil:
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "invalid number %q", raw)}
		}
		return d, d.StringFixed(2), nil

	case FieldPhone:
		phone, rewritten, err := v.locale.NormalizePhone(raw)
		if err != nil {
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "invalid phone number %q", raw)}
		}
		if rewritten {
			return phone, phone, []FieldIssue{WarningIssue(spec.Name,
				"local number %q stored as %s", raw, phone)}
		}
		return phone, phone, nil

	case FieldEmail:
		email, err := NormalizeEmail(raw)
		if err != nil {
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "invalid email address %q", raw)}
		}
		return email, email, nil

	case FieldBool:
		b, ok := ParseBool(raw)
		if !ok {
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "must be yes/no, true/false, or 1/0 (got %q)", raw)}
		}
		return b, strconv.FormatBool(b), nil

	case FieldInteger:
		i, err := ParseInteger(raw)
		switch {
		case errors.Is(err, ErrIntegerRange):
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "whole number out of range %q", raw)}
		case err != nil:
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "invalid whole number %q", raw)}
		}
		return i, strconv.FormatInt(i, 10), nil

	default:
		if spec.MaxLen > 0 && len([]rune(raw)) > spec.MaxLen {
			return nil, "", []FieldIssue{ErrorIssue(spec.Name, "too long (%d characters, max %d)", len([]rune(raw)), spec.MaxLen)}
		}
		return raw, raw, nil
	}
}

func dateHint(order DateOrder) string {
	if order == DateOrderMDY {
		return "MM/DD/YYYY"
	}
	return "DD/MM/YYYY"
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "one of"
	case FieldDate:
		return "date"
	case FieldAmount:
		return "amount"
	case FieldBool:
		return "yes/no"
	case FieldPhone:
		return "phone"
	case FieldEmail:
		return "email"
	case FieldInteger:
		return "whole number"
	default:
		return "value"
	}
}

// describeField renders a spec for template instructions.
func describeField(spec FieldSpec) string {
	desc := fieldTypeName(spec.Type)
	if spec.Type == FieldEnum {
		desc = fmt.Sprintf("one of: %s", strings.Join(spec.EnumValues, ", "))
	}
	if spec.Description != "" {
		desc += ". " + spec.Description
	}
	return desc
}
