package core_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/crmimport/internal/core"
)

func TestTemplate_CSVHasBOMAndHeader(t *testing.T) {
	data, err := newImporter(nil).Template(core.TargetOrders, core.FormatCSV)
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t,
		"order_ref,name,phone,email,address,order_date,status,product,quantity,subtotal,shipping_fee,discount,total,notes\n",
		string(data[3:]))
}

func TestTemplate_TSV(t *testing.T) {
	data, err := newImporter(nil).Template(core.TargetCustomers, core.FormatTSV)
	require.NoError(t, err)

	assert.Equal(t, "name\tphone\temail\taddress\tcity\tstate\tpostcode\tnotes\n", string(data))
}

func TestTemplate_XLSX(t *testing.T) {
	data, err := newImporter(nil).Template(core.TargetShipments, core.FormatXLSX)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"Shipments", "Instructions"}, sheets)

	rows, err := f.GetRows("Shipments")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "order_ref", rows[0][0])
	assert.Equal(t, "courier", rows[0][1])

	dvs, err := f.GetDataValidations("Shipments")
	require.NoError(t, err)
	require.NotEmpty(t, dvs)
	assert.Contains(t, dvs[0].Formula1, "poslaju")

	info, err := f.GetRows("Instructions")
	require.NoError(t, err)
	assert.Equal(t, []string{"Column", "Required", "Format", "Default"}, info[0])
	assert.Equal(t, "order_ref", info[1][0])
	assert.Equal(t, "yes", info[1][1])
}

// A template must always validate as a header-only file.
func TestTemplate_RoundTripsThroughValidate(t *testing.T) {
	im := newImporter(nil)

	for _, target := range []core.Target{core.TargetCustomers, core.TargetOrders, core.TargetShipments} {
		for _, format := range core.Formats() {
			t.Run(string(target)+"/"+string(format), func(t *testing.T) {
				data, err := im.Template(target, format)
				require.NoError(t, err)

				res, err := im.Validate(context.Background(), target, core.File{
					Name:   "template" + format.Extension(),
					Format: format,
					Reader: bytes.NewReader(data),
				})
				require.NoError(t, err)
				assert.Zero(t, res.TotalRows)
				assert.True(t, res.IsValid)
				assert.Empty(t, res.Warnings)
			})
		}
	}
}

func TestTemplate_UnknownTargetAndFormat(t *testing.T) {
	im := newImporter(nil)

	_, err := im.Template(core.Target("invoices"), core.FormatCSV)
	assert.ErrorIs(t, err, core.ErrUnknownTarget)

	_, err = im.Template(core.TargetOrders, core.Format("ods"))
	assert.True(t, core.IsFormatError(err, core.ReasonUnsupported), err)
}
