package core

// convert.go provides type coercion for untrusted cell values and the
// conversions to PostgreSQL types used by the COPY path.
//
// These functions handle the messy reality of operator-provided files:
//   - Numeric dates whose day/month order depends on a configured locale
//   - Currency markers (RM, MYR, $) and thousand separators in amounts
//   - Local phone numbers written without the country code
//   - Excel artifacts (="value", leading apostrophe, serial dates)

import (
	"errors"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DateOrder fixes how ambiguous numeric dates such as 03/04/2024 are read.
type DateOrder string

const (
	DateOrderDMY DateOrder = "DMY"
	DateOrderMDY DateOrder = "MDY"
)

// ParseDateOrder accepts "DMY" or "MDY" in any case.
func ParseDateOrder(s string) (DateOrder, error) {
	switch DateOrder(strings.ToUpper(strings.TrimSpace(s))) {
	case DateOrderDMY:
		return DateOrderDMY, nil
	case DateOrderMDY:
		return DateOrderMDY, nil
	}
	return "", errors.New("date order must be DMY or MDY")
}

// Locale holds the fixed conventions used to coerce ambiguous input.
// Every row of a file is read with the same Locale.
type Locale struct {
	DateOrder   DateOrder
	CountryCode string           // digits only, e.g. "60"
	Now         func() time.Time // clock for future-date checks and 2-digit years
}

// DefaultLocale reads day-first dates and Malaysian phone numbers.
func DefaultLocale() Locale {
	return Locale{DateOrder: DateOrderDMY, CountryCode: "60", Now: time.Now}
}

func (l Locale) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation with a two-digit
// exponent, which keeps decimal rescaling bounded.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d{1,2})?$`)

// integerRegex matches a whole number, allowing a zero fraction ("3.00").
var integerRegex = regexp.MustCompile(`^[+-]?\d+(\.0*)?$`)

// maxNumericLen caps numeric cells before they are parsed.
const maxNumericLen = 32

// phoneRegex matches an international number without the plus sign.
var phoneRegex = regexp.MustCompile(`^[1-9]\d{8,14}$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts that never depend on the locale.
var isoDateLayouts = []string{
	"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
	"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05", "2006-01-02 15:04",
	"2 Jan 2006", "2-Jan-2006", "2 January 2006", "Jan 2, 2006", "January 2, 2006",
}

// Numeric layouts per date order, split by year width for pivot handling.
var (
	dmyLayouts       = []string{"2/1/2006", "2-1-2006", "2.1.2006"}
	dmyTwoDigitYears = []string{"2/1/06", "2-1-06", "2.1.06"}
	mdyLayouts       = []string{"1/2/2006", "1-2-2006", "1.2.2006"}
	mdyTwoDigitYears = []string{"1/2/06", "1-2-06", "1.2.06"}
)

// ErrInvalidDate is returned by ParseDate for values outside the allow-list.
var ErrInvalidDate = errors.New("invalid date")

// ParseDate parses s against the allow-list of layouts for the locale.
// ISO and month-name layouts are always accepted; numeric layouts are
// read strictly in the configured day/month order.
func (l Locale) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}

	full, short := dmyLayouts, dmyTwoDigitYears
	if l.DateOrder == DateOrderMDY {
		full, short = mdyLayouts, mdyTwoDigitYears
	}

	for _, layout := range full {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	pivotYear := l.now().Year() + TwoDigitYearPivot
	for _, layout := range short {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// ParseExcelDate accepts a spreadsheet serial date such as 45306.
func ParseExcelDate(s string) (time.Time, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return time.Time{}, ErrInvalidDate
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return truncateDay(t), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MaxAmountDigits is the number of digits allowed before the decimal point,
// matching the NUMERIC(14, 2) amount columns.
const MaxAmountDigits = 12

// Numeric coercion errors.
var (
	ErrNotNumber      = errors.New("invalid number")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountTooLarge = errors.New("amount too large")
	ErrIntegerRange   = errors.New("whole number out of range")
)

// AmountFits reports whether d has at most digits digits before the
// decimal point.
func AmountFits(d decimal.Decimal, digits int) bool {
	return d.Abs().LessThan(decimal.New(1, int32(digits)))
}

// currencyMarkers are stripped from amounts. Longer markers come first.
var currencyMarkers = []string{"MYR", "RM", "$", "€", "£"}

// ParseAmount parses a currency amount and rounds it to two decimal places.
// Handles currency markers, thousands separators, and accounting format
// (parentheses for negative). Negative results return ErrNegativeAmount
// together with the parsed value. Values with more than MaxAmountDigits
// digits before the decimal point return ErrAmountTooLarge.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxNumericLen {
		return decimal.Zero, ErrNotNumber
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	upper := strings.ToUpper(s)
	for _, marker := range currencyMarkers {
		if strings.HasPrefix(upper, marker) {
			s = s[len(marker):]
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, ErrNotNumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrNotNumber
	}
	d = d.Round(2)

	if !AmountFits(d, MaxAmountDigits) {
		return decimal.Zero, ErrAmountTooLarge
	}
	if d.IsNegative() {
		return d, ErrNegativeAmount
	}
	return d, nil
}

// ParseInteger parses a whole number that fits in an int64. Thousands
// separators and a zero fraction are accepted.
func ParseInteger(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if len(s) > maxNumericLen || !integerRegex.MatchString(s) {
		return 0, ErrNotNumber
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}

	i, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, ErrIntegerRange
	}
	if err != nil {
		return 0, ErrNotNumber
	}
	return i, nil
}

// ErrInvalidPhone is returned for values that cannot be a phone number.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone strips formatting from a phone number and returns it in
// international form without the plus sign. Local numbers starting with a
// single 0 get the locale's country code; rewritten reports when that happened.
func (l Locale) NormalizePhone(s string) (phone string, rewritten bool, err error) {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')', '/':
			return -1
		}
		return r
	}, s)

	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	case strings.HasPrefix(s, "0") && l.CountryCode != "":
		s = l.CountryCode + s[1:]
		rewritten = true
	}

	if !phoneRegex.MatchString(s) {
		return "", false, ErrInvalidPhone
	}
	return s, rewritten, nil
}

// ErrInvalidEmail is returned for malformed email addresses.
var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail validates a bare address and lowercases it.
func NormalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// ParseBool accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts an optional date to pgtype.Date.
func ToPgDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// ToPgNumeric converts a decimal to pgtype.Numeric.
func ToPgNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgNullNumeric converts an optional decimal to pgtype.Numeric.
func ToPgNullNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{Valid: false}
	}
	return ToPgNumeric(d.Decimal)
}

// ToPgBool converts a boolean to pgtype.Bool.
func ToPgBool(b bool) pgtype.Bool {
	return pgtype.Bool{Bool: b, Valid: true}
}

// ToPgInt8 converts an integer to pgtype.Int8.
func ToPgInt8(i int64) pgtype.Int8 {
	return pgtype.Int8{Int64: i, Valid: true}
}

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching. The first
// occurrence of a repeated column wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// normalizeHeader lowercases a header and folds spaces and dashes to
// underscores so "Order Date" matches order_date.
func normalizeHeader(h string) string {
	h = strings.ToLower(CleanCell(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes the leading apostrophe Excel uses to force text
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	s = strings.TrimPrefix(s, "'")

	return strings.TrimSpace(s)
}
