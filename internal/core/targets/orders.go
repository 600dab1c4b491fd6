package targets

import (
	"strings"
	"time"

	"github.com/JonMunkholm/crmimport/internal/core"
	"github.com/shopspring/decimal"
)

// Order statuses accepted on import.
var OrderStatuses = []string{"pending", "paid", "packed", "shipped", "delivered", "cancelled", "refunded"}

// Order is a validated order row.
type Order struct {
	OrderRef    string
	Name        string
	Phone       string
	Email       string
	Address     string
	OrderDate   *time.Time
	Status      string
	Product     string
	Quantity    int64
	Subtotal    decimal.NullDecimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	Notes       string
}

func (o Order) Target() core.Target { return core.TargetOrders }

// DuplicateKey identifies an order by its reference when it has one.
// Orders without a reference are identified by phone, date and total.
func (o Order) DuplicateKey() core.Key {
	if o.OrderRef != "" {
		return core.Key("ref:" + strings.ToLower(o.OrderRef))
	}
	date := "-"
	if o.OrderDate != nil {
		date = o.OrderDate.Format("2006-01-02")
	}
	return core.Key("phone:" + o.Phone + "|date:" + date + "|total:" + o.Total.StringFixed(2))
}

func ordersDefinition() core.TargetDefinition {
	return core.TargetDefinition{
		Info: core.TargetInfo{
			Key:         core.TargetOrders,
			Label:       "Orders",
			Description: "Customer orders. Orders are matched on order_ref, or on phone, date and total when no reference is given.",
			Table:       "orders",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "order_ref", Type: core.FieldText, MaxLen: 64},
			{Name: "name", Type: core.FieldText, Required: true, MaxLen: 200},
			{Name: "phone", Type: core.FieldPhone, Required: true},
			{Name: "email", Type: core.FieldEmail},
			{Name: "address", Type: core.FieldText, MaxLen: 500},
			{Name: "order_date", Type: core.FieldDate},
			{Name: "status", Type: core.FieldEnum, Required: true, Default: "pending", EnumValues: OrderStatuses},
			{Name: "product", Type: core.FieldText, MaxLen: 200},
			{Name: "quantity", Type: core.FieldInteger, Required: true, Default: "1"},
			{Name: "subtotal", Type: core.FieldAmount},
			{Name: "shipping_fee", Type: core.FieldAmount},
			{Name: "discount", Type: core.FieldAmount},
			{Name: "total", Type: core.FieldAmount, Required: true, Description: "Must equal subtotal + shipping_fee - discount when subtotal is given"},
			{Name: "notes", Type: core.FieldText, MaxLen: 1000},
		},
		Build: buildOrder,
		CopyColumns: []string{
			"order_ref", "name", "phone", "email", "address", "order_date", "status",
			"product", "quantity", "subtotal", "shipping_fee", "discount", "total", "notes",
		},
		CopyRow: func(rec core.Record) []any {
			o := rec.(Order)
			return []any{
				core.ToPgText(o.OrderRef),
				core.ToPgText(o.Name),
				core.ToPgText(o.Phone),
				core.ToPgText(o.Email),
				core.ToPgText(o.Address),
				core.ToPgDate(o.OrderDate),
				core.ToPgText(o.Status),
				core.ToPgText(o.Product),
				core.ToPgInt8(o.Quantity),
				core.ToPgNullNumeric(o.Subtotal),
				core.ToPgNumeric(o.ShippingFee),
				core.ToPgNumeric(o.Discount),
				core.ToPgNumeric(o.Total),
				core.ToPgText(o.Notes),
			}
		},
	}
}

func buildOrder(f core.Fields) (core.Record, []core.FieldIssue) {
	var issues []core.FieldIssue

	o := Order{
		OrderRef:    f.Text("order_ref"),
		Name:        f.Text("name"),
		Phone:       f.Text("phone"),
		Email:       f.Text("email"),
		Address:     f.Text("address"),
		OrderDate:   optionalDate(f, "order_date"),
		Status:      f.Text("status"),
		Product:     f.Text("product"),
		ShippingFee: f.AmountOrZero("shipping_fee"),
		Discount:    f.AmountOrZero("discount"),
		Total:       f.AmountOrZero("total"),
		Notes:       f.Text("notes"),
	}

	if q, ok := f.Int("quantity"); ok {
		o.Quantity = q
		if q < 1 {
			issues = append(issues, core.ErrorIssue("quantity", "must be at least 1 (got %d)", q))
		}
	}

	if sub, ok := f.Amount("subtotal"); ok {
		o.Subtotal = decimal.NullDecimal{Decimal: sub, Valid: true}

		// Only check when every term coerced; a bad amount is already reported.
		if f.Has("total") && termsCoerced(f, "shipping_fee", "discount") {
			want := sub.Add(o.ShippingFee).Sub(o.Discount)
			if !want.Equal(o.Total) {
				issues = append(issues, core.ErrorIssue("total",
					"total %s does not match subtotal + shipping_fee - discount (%s)",
					o.Total.StringFixed(2), want.StringFixed(2)))
			}
		}
	}

	if o.OrderDate != nil && o.OrderDate.After(time.Now()) {
		issues = append(issues, core.WarningIssue("order_date", "date %s is in the future", o.OrderDate.Format("2006-01-02")))
	}

	return o, issues
}

// termsCoerced reports whether none of the named fields failed coercion.
func termsCoerced(f core.Fields, names ...string) bool {
	for _, n := range names {
		if f.Failed(n) {
			return false
		}
	}
	return true
}
