// Package namespace derives the per-user storage namespace from an
// authenticated identity.
package namespace

import "strings"

// Separator joins the country calling code and the phone number. Normalised
// inputs only contain ASCII digits so it can never appear inside either part.
const Separator = ":"

// Namespace is the storage key prefix owning one user's persisted state.
type Namespace string

// IsZero reports whether the namespace is unresolved.
func (n Namespace) IsZero() bool {
	return n == ""
}

// Key returns the storage key for a field suffix such as "_balance".
func (n Namespace) Key(field string) string {
	return string(n) + field
}

func (n Namespace) String() string {
	return string(n)
}

// Resolve builds the namespace for a country calling code and phone number.
// It returns false when either part is missing or not a phone number, in
// which case callers have nothing to load or save.
func Resolve(countryCode, phone string) (Namespace, bool) {
	cc, ok := Normalize(countryCode)
	if !ok {
		return "", false
	}
	p, ok := Normalize(phone)
	if !ok {
		return "", false
	}
	return Namespace(cc + Separator + p), true
}

// Normalize strips a leading '+' and common visual separators, and reports
// whether what remains is a non-empty run of ASCII digits.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
