// Package classify derives reporting labels for a port: the carrier behind a SIM
// and the four-way port health status.
package classify

import "strings"

// Carrier labels.
const (
	CarrierATT     = "AT&T"
	CarrierTMobile = "T-Mobile"
	CarrierVerizon = "Verizon"
	CarrierOther   = "Other/Unknown"
	CarrierUnknown = "Unknown"
)

const (
	prefixVerizon = "8914"
	prefixUS      = "8901"
)

// Mobile network codes following the US issuer prefix.
var (
	attMNC     = map[string]bool{"030": true, "150": true, "170": true, "280": true, "380": true, "410": true, "560": true, "680": true}
	tmobileMNC = map[string]bool{"026": true, "160": true, "240": true, "260": true, "490": true, "580": true, "800": true}
)

// Carrier maps an ICCID to a carrier label using its issuer prefix and network code.
func Carrier(iccid *string) string {
	if iccid == nil || len(*iccid) < 7 {
		return CarrierUnknown
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, *iccid)

	if strings.HasPrefix(digits, prefixVerizon) {
		return CarrierVerizon
	}
	if strings.HasPrefix(digits, prefixUS) && len(digits) >= 7 {
		mnc := digits[4:7]
		switch {
		case attMNC[mnc]:
			return CarrierATT
		case tmobileMNC[mnc]:
			return CarrierTMobile
		}
	}
	return CarrierOther
}
