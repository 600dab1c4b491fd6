package targets

import (
	"regexp"
	"strings"
)

// MyStates maps Malaysian state names, common spellings and postal
// abbreviations to the canonical state name.
var MyStates = map[string]string{
	"johor":           "Johor",
	"johore":          "Johor",
	"jhr":             "Johor",
	"kedah":           "Kedah",
	"kdh":             "Kedah",
	"kelantan":        "Kelantan",
	"ktn":             "Kelantan",
	"melaka":          "Melaka",
	"malacca":         "Melaka",
	"mlk":             "Melaka",
	"negeri sembilan": "Negeri Sembilan",
	"n. sembilan":     "Negeri Sembilan",
	"nsn":             "Negeri Sembilan",
	"pahang":          "Pahang",
	"phg":             "Pahang",
	"perak":           "Perak",
	"prk":             "Perak",
	"perlis":          "Perlis",
	"pls":             "Perlis",
	"pulau pinang":    "Pulau Pinang",
	"penang":          "Pulau Pinang",
	"png":             "Pulau Pinang",
	"sabah":           "Sabah",
	"sbh":             "Sabah",
	"sarawak":         "Sarawak",
	"swk":             "Sarawak",
	"selangor":        "Selangor",
	"sgr":             "Selangor",
	"terengganu":      "Terengganu",
	"trengganu":       "Terengganu",
	"trg":             "Terengganu",
	"kuala lumpur":    "Kuala Lumpur",
	"wp kuala lumpur": "Kuala Lumpur",
	"kl":              "Kuala Lumpur",
	"kul":             "Kuala Lumpur",
	"labuan":          "Labuan",
	"wp labuan":       "Labuan",
	"lbn":             "Labuan",
	"putrajaya":       "Putrajaya",
	"wp putrajaya":    "Putrajaya",
	"pjy":             "Putrajaya",
}

// NormalizeMyState converts a Malaysian state name or abbreviation to its
// canonical name. Unrecognized input is returned trimmed.
func NormalizeMyState(s string) string {
	s = strings.TrimSpace(s)
	key := strings.TrimPrefix(lowerKey(s), "w.p. ")

	if name, ok := MyStates[key]; ok {
		return name
	}
	return s
}

// Couriers is the closed list of couriers a shipment may use.
var Couriers = []string{"poslaju", "jnt", "dhl", "ninjavan", "citylink", "gdex", "spx"}

var courierAliases = map[string]string{
	"pos laju":       "poslaju",
	"pos malaysia":   "poslaju",
	"j&t":            "jnt",
	"j&t express":    "jnt",
	"j and t":        "jnt",
	"dhl ecommerce":  "dhl",
	"ninja van":      "ninjavan",
	"city-link":      "citylink",
	"city link":      "citylink",
	"gd express":     "gdex",
	"shopee express": "spx",
	"spx express":    "spx",
}

// NormalizeCourier maps common courier spellings to their code.
func NormalizeCourier(s string) string {
	key := lowerKey(s)
	if code, ok := courierAliases[key]; ok {
		return code
	}
	return key
}

// NormalizeTrackingNo uppercases a tracking number and drops spaces.
func NormalizeTrackingNo(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// NormalizePostcode drops spaces inside a postcode.
func NormalizePostcode(s string) string {
	return strings.Join(strings.Fields(s), "")
}

var postcodeRegex = regexp.MustCompile(`^\d{5}$`)

// ValidPostcode reports whether s is a five digit Malaysian postcode.
func ValidPostcode(s string) bool {
	return postcodeRegex.MatchString(s)
}

// lowerKey lowercases s and collapses runs of whitespace.
func lowerKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
