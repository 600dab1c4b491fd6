package targets

import (
	"time"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/shopspring/decimal"
)

// Shipment is a validated shipment row.
type Shipment struct {
	OrderRef      string
	Courier       string
	TrackingNo    string
	RecipientName string
	Phone         string
	Address       string
	Postcode      string
	WeightKg      decimal.NullDecimal
	COD           bool
	CODAmount     decimal.NullDecimal
	ShippedDate   *time.Time
}

func (s Shipment) Target() core.Target { return core.TargetShipments }

// DuplicateKey identifies a shipment by courier and tracking number.
func (s Shipment) DuplicateKey() core.Key {
	return core.Key("track:" + s.Courier + "|" + s.TrackingNo)
}

func shipmentsDefinition() core.TargetDefinition {
	return core.TargetDefinition{
		Info: core.TargetInfo{
			Key:         core.TargetShipments,
			Label:       "Shipments",
			Description: "Courier consignments. A courier and tracking number pair already on file is treated as a duplicate.",
			Table:       "shipments",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "order_ref", Type: core.FieldText, Required: true, MaxLen: 64},
			{Name: "courier", Type: core.FieldEnum, Required: true, EnumValues: Couriers, Normalizer: NormalizeCourier},
			{Name: "tracking_no", Type: core.FieldText, Required: true, MaxLen: 64, Normalizer: NormalizeTrackingNo},
			{Name: "recipient_name", Type: core.FieldText, Required: true, MaxLen: 200},
			{Name: "phone", Type: core.FieldPhone, Required: true},
			{Name: "address", Type: core.FieldText, Required: true, MaxLen: 500},
			{Name: "postcode", Type: core.FieldText, Normalizer: NormalizePostcode, Description: "5 digits"},
			{Name: "weight_kg", Type: core.FieldAmount, MaxDigits: 8},
			{Name: "cod", Type: core.FieldBool, Default: "no", Description: "Cash on delivery"},
			{Name: "cod_amount", Type: core.FieldAmount, Description: "Required when cod is yes"},
			{Name: "shipped_date", Type: core.FieldDate},
		},
		Build: buildShipment,
		CopyColumns: []string{
			"order_ref", "courier", "tracking_no", "recipient_name", "phone", "address",
			"postcode", "weight_kg", "cod", "cod_amount", "shipped_date",
		},
		CopyRow: func(rec core.Record) []any {
			s := rec.(Shipment)
			return []any{
				core.ToPgText(s.OrderRef),
				core.ToPgText(s.Courier),
				core.ToPgText(s.TrackingNo),
				core.ToPgText(s.RecipientName),
				core.ToPgText(s.Phone),
				core.ToPgText(s.Address),
				core.ToPgText(s.Postcode),
				core.ToPgNullNumeric(s.WeightKg),
				core.ToPgBool(s.COD),
				core.ToPgNullNumeric(s.CODAmount),
				core.ToPgDate(s.ShippedDate),
			}
		},
	}
}

func buildShipment(f core.Fields) (core.Record, []core.FieldIssue) {
	var issues []core.FieldIssue

	s := Shipment{
		OrderRef:      f.Text("order_ref"),
		Courier:       f.Text("courier"),
		TrackingNo:    f.Text("tracking_no"),
		RecipientName: f.Text("recipient_name"),
		Phone:         f.Text("phone"),
		Address:       f.Text("address"),
		Postcode:      f.Text("postcode"),
		ShippedDate:   optionalDate(f, "shipped_date"),
	}
	s.COD, _ = f.Bool("cod")

	if w, ok := f.Amount("weight_kg"); ok {
		s.WeightKg = decimal.NullDecimal{Decimal: w, Valid: true}
		if !w.IsPositive() {
			issues = append(issues, core.ErrorIssue("weight_kg", "weight must be greater than 0"))
		}
	}
	if amt, ok := f.Amount("cod_amount"); ok {
		s.CODAmount = decimal.NullDecimal{Decimal: amt, Valid: true}
	}

	if s.Postcode != "" && !ValidPostcode(s.Postcode) {
		issues = append(issues, core.ErrorIssue("postcode", "invalid postcode %q (must be 5 digits)", s.Postcode))
	}

	switch {
	case s.COD && !f.Failed("cod_amount") && (!s.CODAmount.Valid || !s.CODAmount.Decimal.IsPositive()):
		issues = append(issues, core.ErrorIssue("cod_amount", "cash on delivery requires a cod_amount greater than 0"))
	case !s.COD && s.CODAmount.Valid && s.CODAmount.Decimal.IsPositive():
		issues = append(issues, core.WarningIssue("cod_amount", "cod_amount ignored because cod is no"))
		s.CODAmount = decimal.NullDecimal{}
	}

	return s, issues
}
