package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Clean prepares a raw scraped string for the catalog: encoded spaces are
// decoded, non-printable runes are dropped, surrounding whitespace is
// trimmed and inner runs are collapsed to a single space.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "%20", " ")
	s = RemoveNonPrintable(s)
	s = strings.Trim(s, " \n\t")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}

func RemoveNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// TitleCase uppercases the first letter of every word and lowercases the
// rest. Some storefronts ship fully uppercase titles; this is opt-in
// because it corrupts proper nouns like "NieR" or "DOOM".
func TitleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// CleanAll maps Clean over a list, dropping entries that fall outside
// [min, max] runes after cleaning.
func CleanAll(values []string, min, max int) []string {
	var out []string
	for _, v := range values {
		v = Clean(v)
		n := len([]rune(v))
		if n < min || n > max {
			continue
		}
		out = append(out, v)
	}
	return out
}
