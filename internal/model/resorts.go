package model

import "strings"

// Resort pairs a DVC resort code with its display name.
type Resort struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// resortCodes lists the codes in the order they appear on the ROFR form.
// Unknown codes found in posts are preserved verbatim, not rejected, so a
// newly sold resort keeps working before this table is updated.
var resortCodes = []Resort{
	{"AKV", "Animal Kingdom"},
	{"AUL", "Aulani"},
	{"BLT", "Bay Lake Tower"},
	{"BCV", "Beach Club"},
	{"BWV", "Boardwalk"},
	{"VDH", "DL Hotel"},
	{"CFW", "Fort Wilderness"},
	{"VGC", "Grand Californian"},
	{"VGF", "Grand Floridian"},
	{"HH", "Hilton Head"},
	{"OKW", "Old Key West (exp 2042)"},
	{"OKW(E)", "Old Key West Extended (exp 2057)"},
	{"PVB", "Polynesian"},
	{"RIV", "Riviera"},
	{"SSR", "Saratoga Springs"},
	{"VB", "Vero Beach"},
	{"BRV@WL", "Wilderness Lodge: Boulder Ridge"},
	{"CCV@WL", "Wilderness Lodge: Copper Creek"},
}

var resortNames = func() map[string]string {
	m := make(map[string]string, len(resortCodes))
	for _, r := range resortCodes {
		m[r.Code] = r.Name
	}
	return m
}()

// ResortName returns the display name for a resort code, or the code itself
// when it is not in the known set.
func ResortName(code string) string {
	if name, ok := resortNames[strings.ToUpper(code)]; ok {
		return name
	}
	if name, ok := resortNames[code]; ok {
		return name
	}
	return code
}

// IsKnownResort reports whether the code is in the fixed enumeration.
func IsKnownResort(code string) bool {
	if _, ok := resortNames[code]; ok {
		return true
	}
	_, ok := resortNames[strings.ToUpper(code)]
	return ok
}

// AllResorts returns the full enumeration in form order.
func AllResorts() []Resort {
	out := make([]Resort, len(resortCodes))
	copy(out, resortCodes)
	return out
}
