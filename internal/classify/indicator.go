package classify

import (
	"strings"

	"golang.org/x/net/html"
)

// Token groups in precedence order. The first group with any hit wins.
var indicatorTokens = []struct {
	ind    Indicator
	tokens []string
}{
	{IndicatorRedDot, []string{"offline", "red", "#ff0000", "rgb(255, 0, 0)"}},
	{IndicatorRedExclamation, []string{"exclamation", "error", "alert"}},
	{IndicatorGreenCircle, []string{"weaksignal", "weak", "yellow", "circle"}},
	{IndicatorGreenDot, []string{"online", "green", "#00ff00", "rgb(0, 255, 0)", "rgb(0, 128, 0)"}},
}

// ParseIndicator reads the status cell markup of one port row. Image sources,
// classes, inline styles and text all contribute hints.
func ParseIndicator(cellHTML string) Indicator {
	hints := indicatorHints(cellHTML)
	for _, group := range indicatorTokens {
		for _, tok := range group.tokens {
			if strings.Contains(hints, tok) {
				return group.ind
			}
		}
	}
	return IndicatorUnknown
}

// indicatorHints flattens attribute values and text of the fragment into one
// lower-cased string. Malformed markup falls back to the raw input.
func indicatorHints(cellHTML string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(cellHTML))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if b.Len() == 0 {
				return strings.ToLower(cellHTML)
			}
			return strings.ToLower(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var val []byte
				_, val, hasAttr = z.TagAttr()
				b.Write(val)
				b.WriteByte(' ')
			}
		}
	}
}
