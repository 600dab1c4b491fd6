package core

// templates.go builds blank import files pre-populated with a target's
// header row. CSV templates carry a UTF-8 BOM so Excel opens them with the
// right encoding; XLSX templates add an instructions sheet and drop-down
// lists for enum columns.

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// templateRows is how far enum drop-downs extend in XLSX templates.
const templateRows = 5000

// Template returns a blank file for target in the requested format.
func (im *Importer) Template(target Target, format Format) ([]byte, error) {
	def, ok := im.registry.Get(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	return BuildTemplate(def, format)
}

// BuildTemplate renders the header row of def in format.
func BuildTemplate(def TargetDefinition, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return delimitedTemplate(def, ',', true)
	case FormatTSV:
		return delimitedTemplate(def, '\t', false)
	case FormatXLSX:
		return sheetTemplate(def)
	}
	return nil, &FormatError{Reason: ReasonUnsupported, Err: fmt.Errorf("format %q", format)}
}

func delimitedTemplate(def TargetDefinition, comma rune, bom bool) ([]byte, error) {
	var buf bytes.Buffer
	if bom {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}

	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(def.Info.Columns); err != nil {
		return nil, fmt.Errorf("write template header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush template: %w", err)
	}
	return buf.Bytes(), nil
}

func sheetTemplate(def TargetDefinition) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := def.Info.Label
	if sheet == "" {
		sheet = string(def.Info.Key)
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(def.Info.Columns))
	for i, c := range def.Info.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	// Text format keeps leading zeros on phone numbers and postcodes.
	textFmt, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		return nil, fmt.Errorf("create text style: %w", err)
	}

	for i, spec := range def.FieldSpecs {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		rng := fmt.Sprintf("%s2:%s%d", col, col, templateRows)

		switch spec.Type {
		case FieldEnum:
			dv := excelize.NewDataValidation(!spec.Required)
			dv.Sqref = rng
			if err := dv.SetDropList(spec.EnumValues); err != nil {
				return nil, fmt.Errorf("drop list for %s: %w", spec.Name, err)
			}
			if err := f.AddDataValidation(sheet, dv); err != nil {
				return nil, fmt.Errorf("add drop list for %s: %w", spec.Name, err)
			}
		case FieldPhone, FieldText:
			if err := f.SetColStyle(sheet, col, textFmt); err != nil {
				return nil, fmt.Errorf("style column %s: %w", spec.Name, err)
			}
			if err := f.SetCellStyle(sheet, col+"1", col+"1", bold); err != nil {
				return nil, fmt.Errorf("restyle header %s: %w", spec.Name, err)
			}
		}
	}

	if err := writeInstructions(f, def); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeInstructions adds a sheet describing every column.
func writeInstructions(f *excelize.File, def TargetDefinition) error {
	const sheet = "Instructions"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create instructions sheet: %w", err)
	}

	rows := [][]any{{"Column", "Required", "Format", "Default"}}
	for _, spec := range def.FieldSpecs {
		required := "no"
		if spec.Required {
			required = "yes"
		}
		rows = append(rows, []any{spec.Name, required, describeField(spec), spec.Default})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write instructions: %w", err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 18); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "C", "C", 60)
}
