package od

import "strings"

// Normalize canonicalizes an entry name: lowercased, with every run of
// non-alphanumeric characters collapsed to a single underscore. Callers may
// pass any case or punctuation variant of a name when looking an entry up.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastWasSep := false
	for _, r := range strings.ToLower(name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			b.WriteByte('_')
			lastWasSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}
