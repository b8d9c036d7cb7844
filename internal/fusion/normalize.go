package fusion

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reCRLF          = regexp.MustCompile(`\r\n?`)
	reHSpace        = regexp.MustCompile(`[ \t]+`)
	reNewlineSpaces = regexp.MustCompile(` *\n *`)
)

const hyphenBreak = "-\n"

// Normalize canonicalizes a raw candidate for alignment: NFC, CR/CRLF to LF,
// hyphenated line breaks joined, space/tab runs collapsed, edges trimmed.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := norm.NFC.String(text)
	s = reCRLF.ReplaceAllString(s, "\n")
	// joining can expose a new "-\n" ("a--\n\nb"), so run to a fixed point
	for strings.Contains(s, hyphenBreak) {
		s = strings.ReplaceAll(s, hyphenBreak, "")
	}
	s = reHSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// a joined break may sit between a base and its combining mark
	return norm.NFC.String(s)
}

// Tokens splits the normalized form of text into its alignment units.
func Tokens(text string) []rune {
	return []rune(Normalize(text))
}

// postProcess cleans the concatenated vote output.
func postProcess(s string) string {
	s = reHSpace.ReplaceAllString(s, " ")
	s = reNewlineSpaces.ReplaceAllString(s, "\n")
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}
