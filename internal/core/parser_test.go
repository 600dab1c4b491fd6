package core

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
)

func collectRows(t *testing.T, rr *RowReader) []RawRow {
	t.Helper()
	var rows []RawRow
	for row, err := range rr.All() {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_EmptyInput(t *testing.T) {
	for name, body := range map[string]string{
		"zero bytes":      "",
		"whitespace only": " \r\n\t\n",
		"bom only":        "\xEF\xBB\xBF",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(body), FormatCSV)
			require.Error(t, err)
			assert.True(t, IsFormatError(err, ReasonEmpty), err)
		})
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	rr, err := Parse(strings.NewReader("Name, Phone ,Order Date\n"), FormatCSV)
	require.NoError(t, err)
	defer rr.Close()

	assert.Equal(t, []string{"Name", "Phone", "Order Date"}, rr.Header().Names())
	i, ok := rr.Header().Index("order_date")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, err = rr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParse_SkipsBlankRowsAndNumbersRows(t *testing.T) {
	body := "\n\na,b\n1,2\n,\n\n3,4\n"
	rr, err := Parse(strings.NewReader(body), FormatCSV)
	require.NoError(t, err)
	defer rr.Close()

	rows := collectRows(t, rr)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Row)
	assert.Equal(t, 4, rows[0].Line)
	assert.Equal(t, 2, rows[1].Row)
	assert.Equal(t, 7, rows[1].Line)

	v, ok := rows[1].Value("B")
	assert.True(t, ok)
	assert.Equal(t, "4", v)
	assert.Equal(t, FormatCSV, rows[1].Source)
}

func TestParse_ColumnMismatchIsYielded(t *testing.T) {
	rr, err := Parse(strings.NewReader("a,b,c\n1,2\n1,2,3\n1,2,3,4\n"), FormatCSV)
	require.NoError(t, err)
	defer rr.Close()

	rows := collectRows(t, rr)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].ColumnMismatch)
	assert.False(t, rows[1].ColumnMismatch)
	assert.True(t, rows[2].ColumnMismatch)

	_, ok := rows[0].Value("c")
	assert.False(t, ok)
}

func TestParse_MalformedCSV(t *testing.T) {
	rr, err := Parse(strings.NewReader("a,b\n1,x\"y\n3,4\n"), FormatCSV)
	require.NoError(t, err)
	defer rr.Close()

	_, err = rr.Next()
	require.Error(t, err)
	assert.True(t, IsFormatError(err, ReasonMalformed), err)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Line)

	// The stream stays failed.
	_, again := rr.Next()
	assert.Equal(t, err, again)
}

func TestParse_TSVKeepsQuotesLiteral(t *testing.T) {
	rr, err := Parse(strings.NewReader("name\tnotes\nAlice\tsays \"hi\"\n"), FormatTSV)
	require.NoError(t, err)
	defer rr.Close()

	rows := collectRows(t, rr)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Alice", `says "hi"`}, rows[0].Cells)
}

func TestParse_UTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	body, err := enc.String("name,city\nAisyah,Kota Bharu\n")
	require.NoError(t, err)

	rr, err := Parse(strings.NewReader(body), FormatCSV)
	require.NoError(t, err)
	defer rr.Close()

	assert.Equal(t, []string{"name", "city"}, rr.Header().Names())
	rows := collectRows(t, rr)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Aisyah", "Kota Bharu"}, rows[0].Cells)
}

func TestParse_XLSX(t *testing.T) {
	data := workbook(t,
		[]any{"name", "phone", "total"},
		[]any{"Alice", "60123456789", 25.5},
		[]any{nil, nil, nil},
		[]any{"Bob"},
	)

	rr, err := Parse(bytes.NewReader(data), FormatXLSX)
	require.NoError(t, err)
	defer rr.Close()

	rows := collectRows(t, rr)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"Alice", "60123456789", "25.5"}, rows[0].Cells)
	assert.Equal(t, 2, rows[0].Line)

	// Short sheet rows are padded to the header width.
	assert.Equal(t, []string{"Bob", "", ""}, rows[1].Cells)
	assert.False(t, rows[1].ColumnMismatch)
	assert.Equal(t, 2, rows[1].Row)
	assert.Greater(t, rr.BytesRead(), int64(0))
}

func TestParse_FormatMismatch(t *testing.T) {
	xlsx := workbook(t, []any{"name"}, []any{"Alice"})

	tests := []struct {
		name   string
		body   []byte
		format Format
		reason string
	}{
		{"workbook declared as csv", xlsx, FormatCSV, ReasonMismatch},
		{"csv declared as xlsx", []byte("name\nAlice\n"), FormatXLSX, ReasonMismatch},
		{"pdf declared as csv", []byte("%PDF-1.4\n%\xE2\xE3\xCF\xD3\n1 0 obj\n"), FormatCSV, ReasonMismatch},
		{"unknown format", []byte("name\n"), Format("ods"), ReasonUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(tt.body), tt.format)
			require.Error(t, err)
			assert.True(t, IsFormatError(err, tt.reason), err)
		})
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"orders.csv", FormatCSV, false},
		{"ORDERS.TSV", FormatTSV, false},
		{"Shipments March.xlsx", FormatXLSX, false},
		{"report.pdf", "", true},
		{"noext", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			if tt.wantErr {
				assert.True(t, IsFormatError(err, ReasonUnsupported), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
