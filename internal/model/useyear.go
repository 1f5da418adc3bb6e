package model

import "strings"

var monthAbbreviations = map[string]string{
	"January": "Jan", "February": "Feb", "March": "Mar",
	"April": "Apr", "May": "May", "June": "Jun",
	"July": "Jul", "August": "Aug", "September": "Sep",
	"October": "Oct", "November": "Nov", "December": "Dec",
}

var validUseYears = map[string]bool{
	"Jan": true, "Feb": true, "Mar": true, "Apr": true,
	"May": true, "Jun": true, "Jul": true, "Aug": true,
	"Sep": true, "Oct": true, "Nov": true, "Dec": true,
}

// NormalizeUseYear converts a use-year month to its three-letter form,
// title-casing the input first ("august" and "August" both become "Aug").
func NormalizeUseYear(useYear string) string {
	uy := strings.TrimSpace(useYear)
	if uy == "" {
		return ""
	}
	uy = strings.ToUpper(uy[:1]) + strings.ToLower(uy[1:])
	if abbr, ok := monthAbbreviations[uy]; ok {
		return abbr
	}
	return uy
}

// IsValidUseYear reports whether the value is a recognized month abbreviation.
func IsValidUseYear(useYear string) bool {
	return validUseYears[NormalizeUseYear(useYear)]
}
