package targets

import (
	"github.com/JonMunkholm/crmimport/internal/core"
)

// Customer is a validated customer row.
type Customer struct {
	Name     string
	Phone    string
	Email    string
	Address  string
	City     string
	State    string
	Postcode string
	Notes    string
}

func (c Customer) Target() core.Target { return core.TargetCustomers }

// DuplicateKey identifies a customer by normalized phone number.
func (c Customer) DuplicateKey() core.Key {
	return core.Key("phone:" + c.Phone)
}

func customersDefinition() core.TargetDefinition {
	return core.TargetDefinition{
		Info: core.TargetInfo{
			Key:         core.TargetCustomers,
			Label:       "Customers",
			Description: "Customer contact list. A phone number already on file is treated as a duplicate.",
			Table:       "customers",
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "name", Type: core.FieldText, Required: true, MaxLen: 200},
			{Name: "phone", Type: core.FieldPhone, Required: true, Description: "Local numbers get the country code prepended"},
			{Name: "email", Type: core.FieldEmail},
			{Name: "address", Type: core.FieldText, MaxLen: 500},
			{Name: "city", Type: core.FieldText, MaxLen: 100},
			{Name: "state", Type: core.FieldText, MaxLen: 100, Normalizer: NormalizeMyState},
			{Name: "postcode", Type: core.FieldText, Normalizer: NormalizePostcode, Description: "5 digits"},
			{Name: "notes", Type: core.FieldText, MaxLen: 1000},
		},
		Build: buildCustomer,
		CopyColumns: []string{
			"name", "phone", "email", "address", "city", "state", "postcode", "notes",
		},
		CopyRow: func(rec core.Record) []any {
			c := rec.(Customer)
			return []any{
				core.ToPgText(c.Name),
				core.ToPgText(c.Phone),
				core.ToPgText(c.Email),
				core.ToPgText(c.Address),
				core.ToPgText(c.City),
				core.ToPgText(c.State),
				core.ToPgText(c.Postcode),
				core.ToPgText(c.Notes),
			}
		},
	}
}

func buildCustomer(f core.Fields) (core.Record, []core.FieldIssue) {
	var issues []core.FieldIssue

	c := Customer{
		Name:     f.Text("name"),
		Phone:    f.Text("phone"),
		Email:    f.Text("email"),
		Address:  f.Text("address"),
		City:     f.Text("city"),
		State:    f.Text("state"),
		Postcode: f.Text("postcode"),
		Notes:    f.Text("notes"),
	}

	if c.Postcode != "" && !ValidPostcode(c.Postcode) {
		issues = append(issues, core.ErrorIssue("postcode", "invalid postcode %q (must be 5 digits)", c.Postcode))
	}
	if c.State != "" {
		if _, ok := MyStates[lowerKey(c.State)]; !ok {
			issues = append(issues, core.WarningIssue("state", "unrecognized state %q", c.State))
		}
	}

	return c, issues
}
