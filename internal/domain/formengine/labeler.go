package formengine

import (
	"strings"
	"unicode"
)

// Label turns a camelCase field identifier into a caption:
// "fechaNacimiento" -> "Fecha Nacimiento", "idCita" -> "Cita".
// Dots from flattened paths count as word breaks.
func Label(field string) string {
	words := splitUpper(strings.ReplaceAll(field, ".", " "))
	if len(words) > 0 && (words[0] == "id" || words[0] == "Id") {
		words = words[1:]
	}
	joined := strings.ToLower(strings.Join(words, " "))

	var b strings.Builder
	b.Grow(len(joined))
	startOfWord := true
	for _, r := range joined {
		if unicode.IsSpace(r) {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			r = unicode.ToUpper(r)
			startOfWord = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitUpper splits s before every uppercase letter.
func splitUpper(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	if start < len(s) {
		words = append(words, s[start:])
	}
	return words
}
