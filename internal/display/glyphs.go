package display

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// The panel face only carries printable ASCII.
const missingGlyph = '_'

var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g",
}

// asciiText rewrites s into glyphs the panel face can draw: Cyrillic is
// transliterated, accents are stripped and anything else becomes '_'.
func asciiText(s string) string {
	if isPrintableASCII(s) {
		return s
	}

	var lat strings.Builder
	for _, r := range s {
		if !unicode.Is(unicode.Cyrillic, r) {
			lat.WriteRune(r)
			continue
		}
		l, ok := cyrillic[unicode.ToLower(r)]
		if !ok {
			lat.WriteRune(missingGlyph)
			continue
		}
		if unicode.IsUpper(r) && l != "" {
			l = strings.ToUpper(l[:1]) + l[1:]
		}
		lat.WriteString(l)
	}
	s = lat.String()

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7F {
			b.WriteRune(r)
		} else {
			b.WriteRune(missingGlyph)
		}
	}
	return b.String()
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] >= 0x7F {
			return false
		}
	}
	return true
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
