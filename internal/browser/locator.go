package browser

import (
	"fmt"
	"strings"
)

// Locator describes how to find elements on a page. Exactly one of CSS or Role
// is set. Name filters role matches by accessible name: an exact
// (case-insensitive, whitespace-collapsed) match is preferred and a substring
// match is used only when no exact match exists. HasText keeps only elements
// whose visible text contains the string and drops any match that has a
// matching descendant, so nested layout tables yield their innermost rows.
type Locator struct {
	CSS     string   `json:"css,omitempty"`
	Role    string   `json:"role,omitempty"`
	Name    string   `json:"name,omitempty"`
	HasText string   `json:"hasText,omitempty"`
	Within  *Locator `json:"within,omitempty"`
}

// CSS locates elements by selector.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// Role locates elements by ARIA role and accessible name.
func Role(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// Text locates the innermost elements whose text contains s.
func Text(s string) Locator {
	return Locator{CSS: "*", HasText: s}
}

// WithText returns a copy of l filtered by visible text.
func (l Locator) WithText(s string) Locator {
	l.HasText = s
	return l
}

// In returns a copy of l scoped to the first match of parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

// String renders the locator for logs and for matching in test doubles.
func (l Locator) String() string {
	var b strings.Builder
	if l.Within != nil {
		b.WriteString(l.Within.String())
		b.WriteString(" >> ")
	}
	switch {
	case l.Role != "" && l.Name != "":
		fmt.Fprintf(&b, "role=%s[name=%q]", l.Role, l.Name)
	case l.Role != "":
		fmt.Fprintf(&b, "role=%s", l.Role)
	default:
		fmt.Fprintf(&b, "css=%s", l.CSS)
	}
	if l.HasText != "" {
		fmt.Fprintf(&b, ":has-text(%q)", l.HasText)
	}
	return b.String()
}
