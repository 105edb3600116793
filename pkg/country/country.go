// Package country normalizes free-form country strings (codes, names, and
// common aliases) to the ISO full name and the ISO 3166-1 alpha-2 code.
package country

import "strings"

type entry struct {
	name string
	code string
}

// canonical maps lowercase alpha-2 codes to the ISO full name.
var canonical = map[string]entry{
	"us": {"United States", "US"},
	"gb": {"United Kingdom", "GB"},
	"ca": {"Canada", "CA"},
	"au": {"Australia", "AU"},
	"nz": {"New Zealand", "NZ"},
	"ie": {"Ireland", "IE"},
	"de": {"Germany", "DE"},
	"fr": {"France", "FR"},
	"es": {"Spain", "ES"},
	"pt": {"Portugal", "PT"},
	"it": {"Italy", "IT"},
	"nl": {"Netherlands", "NL"},
	"be": {"Belgium", "BE"},
	"lu": {"Luxembourg", "LU"},
	"ch": {"Switzerland", "CH"},
	"at": {"Austria", "AT"},
	"se": {"Sweden", "SE"},
	"no": {"Norway", "NO"},
	"dk": {"Denmark", "DK"},
	"fi": {"Finland", "FI"},
	"is": {"Iceland", "IS"},
	"pl": {"Poland", "PL"},
	"cz": {"Czechia", "CZ"},
	"sk": {"Slovakia", "SK"},
	"hu": {"Hungary", "HU"},
	"ro": {"Romania", "RO"},
	"bg": {"Bulgaria", "BG"},
	"gr": {"Greece", "GR"},
	"tr": {"Turkey", "TR"},
	"ua": {"Ukraine", "UA"},
	"ru": {"Russia", "RU"},
	"ee": {"Estonia", "EE"},
	"lv": {"Latvia", "LV"},
	"lt": {"Lithuania", "LT"},
	"il": {"Israel", "IL"},
	"ae": {"United Arab Emirates", "AE"},
	"sa": {"Saudi Arabia", "SA"},
	"qa": {"Qatar", "QA"},
	"eg": {"Egypt", "EG"},
	"za": {"South Africa", "ZA"},
	"ng": {"Nigeria", "NG"},
	"ke": {"Kenya", "KE"},
	"in": {"India", "IN"},
	"pk": {"Pakistan", "PK"},
	"bd": {"Bangladesh", "BD"},
	"lk": {"Sri Lanka", "LK"},
	"cn": {"China", "CN"},
	"hk": {"Hong Kong", "HK"},
	"tw": {"Taiwan", "TW"},
	"jp": {"Japan", "JP"},
	"kr": {"South Korea", "KR"},
	"sg": {"Singapore", "SG"},
	"my": {"Malaysia", "MY"},
	"th": {"Thailand", "TH"},
	"vn": {"Vietnam", "VN"},
	"ph": {"Philippines", "PH"},
	"id": {"Indonesia", "ID"},
	"mx": {"Mexico", "MX"},
	"br": {"Brazil", "BR"},
	"ar": {"Argentina", "AR"},
	"cl": {"Chile", "CL"},
	"co": {"Colombia", "CO"},
	"pe": {"Peru", "PE"},
}

// aliases maps lowercase free-form inputs to alpha-2 codes. Full ISO names
// themselves are added at init so lookup is one map hit either way.
var aliases = map[string]string{
	"usa":                      "us",
	"u.s.":                     "us",
	"u.s.a.":                   "us",
	"united states of america": "us",
	"america":                  "us",
	"uk":                       "gb",
	"u.k.":                     "gb",
	"britain":                  "gb",
	"great britain":            "gb",
	"england":                  "gb",
	"scotland":                 "gb",
	"wales":                    "gb",
	"northern ireland":         "gb",
	"holland":                  "nl",
	"the netherlands":          "nl",
	"czech republic":           "cz",
	"republic of ireland":      "ie",
	"russian federation":       "ru",
	"republic of korea":        "kr",
	"korea":                    "kr",
	"viet nam":                 "vn",
	"uae":                      "ae",
	"türkiye":                  "tr",
	"turkiye":                  "tr",
}

func init() {
	for code, e := range canonical {
		aliases[strings.ToLower(e.name)] = code
	}
}

// Normalize returns the ISO full country name for the input, or the input
// unchanged (trimmed) when it cannot be resolved. Empty input stays empty.
func Normalize(raw string) string {
	name, _ := Lookup(raw)
	if name == "" {
		return strings.TrimSpace(raw)
	}
	return name
}

// Code returns the alpha-2 code for the input, or "" when unknown.
func Code(raw string) string {
	_, code := Lookup(raw)
	return code
}

// Lookup resolves a free-form country string to (full name, alpha-2 code).
// Both are empty when the input is unknown.
func Lookup(raw string) (string, string) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ""
	}
	if e, ok := canonical[s]; ok {
		return e.name, e.code
	}
	if code, ok := aliases[s]; ok {
		e := canonical[code]
		return e.name, e.code
	}
	return "", ""
}
