package portdata

import (
	"regexp"
	"strings"
)

// Command is a console AT command whose per-port responses carry one attribute.
type Command string

const (
	// CommandIMEI queries the modem serial (identifier-1).
	CommandIMEI Command = "at+cgsn"
	// CommandICCID queries the SIM serial (identifier-2).
	CommandICCID Command = "at+ccid"
	// CommandMDN queries the subscriber number.
	CommandMDN Command = "at+cnum"
)

// Attribute names one of the three identifiers recovered per port.
type Attribute string

const (
	AttrIMEI  Attribute = "imei"
	AttrICCID Attribute = "iccid"
	AttrMDN   Attribute = "mdn"
)

// Attributes lists every attribute in scrape order.
var Attributes = []Attribute{AttrIMEI, AttrICCID, AttrMDN}

// Command returns the console command that yields a.
func (a Attribute) Command() Command {
	switch a {
	case AttrICCID:
		return CommandICCID
	case AttrMDN:
		return CommandMDN
	default:
		return CommandIMEI
	}
}

// Label is the upper-case name used in reports and missing-field lists.
func (a Attribute) Label() string {
	return strings.ToUpper(string(a))
}

// ParseAttribute accepts an attribute name or its command.
func ParseAttribute(s string) (Attribute, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "imei", string(CommandIMEI):
		return AttrIMEI, true
	case "iccid", "sim", string(CommandICCID):
		return AttrICCID, true
	case "mdn", "phone", string(CommandMDN):
		return AttrMDN, true
	}
	return "", false
}

var (
	portTokenRe = regexp.MustCompile(`\bA\d{1,2}\b|\b\d{1,2}A\b`)
	digitRunRe  = regexp.MustCompile(`\d{10,}`)
	ccidTagRe   = regexp.MustCompile(`(?i)\+CCID:\s*(\d{10,})`)
	cnumTagRe   = regexp.MustCompile(`(?i)\+CNUM:.*?"\+?(\d{10,})"`)

	// Console tables render padding as NBSP and friends.
	spaceReplacer = strings.NewReplacer(
		"\u00a0", " ",
		"\u2007", " ",
		"\u202f", " ",
		"\u200b", "",
		"\t", " ",
		"\r", " ",
	)
)

// NormalizeText replaces non-breaking and zero-width formatting artifacts with plain spaces.
func NormalizeText(s string) string {
	return spaceReplacer.Replace(s)
}

// Extract parses one console response row into a port key and attribute value.
// ok is false when the row carries no port token or no usable value; callers skip such rows.
func Extract(row string, cmd Command) (key Key, value string, ok bool) {
	txt := NormalizeText(row)
	if strings.TrimSpace(txt) == "" {
		return "", "", false
	}

	tok := portTokenRe.FindString(txt)
	if tok == "" {
		return "", "", false
	}
	key, err := NormalizeKey(tok)
	if err != nil {
		return "", "", false
	}

	switch cmd {
	case CommandICCID:
		value = tagged(ccidTagRe, txt)
		if value == "" {
			value = longestDigitRun(txt)
		}
	case CommandMDN:
		value = tagged(cnumTagRe, txt)
		if value == "" {
			value = longestDigitRun(txt)
		}
		value = NormalizeMDN(value)
	default:
		value = longestDigitRun(txt)
	}

	if value == "" {
		return key, "", false
	}
	return key, value, true
}

// NormalizeMDN strips a leading country code 1 from 11-digit numbers and
// returns "" for anything that is not a 10-digit national number afterwards.
func NormalizeMDN(v string) string {
	if len(v) == 11 && v[0] == '1' {
		v = v[1:]
	}
	if len(v) != 10 {
		return ""
	}
	return v
}

func tagged(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// longestDigitRun returns the longest run of >= 10 digits; the first one wins ties.
func longestDigitRun(s string) string {
	best := ""
	for _, m := range digitRunRe.FindAllString(s, -1) {
		if len(m) > len(best) {
			best = m
		}
	}
	return best
}
