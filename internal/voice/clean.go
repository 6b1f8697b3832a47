package voice

import (
	"regexp"
	"strings"
)

var (
	// annotation matches whisper's sound descriptions: "(music)",
	// "[BLANK_AUDIO]", "(keyboard clicking)".
	annotation = regexp.MustCompile(`[\(\[][A-Za-z][A-Za-z_\s]*[\)\]]`)
	// timestamp matches "[00:00:00.000 --> 00:00:05.000]" prefixes.
	timestamp = regexp.MustCompile(`\[\d{2}:\d{2}[:.\d]*\s*-->\s*\d{2}:\d{2}[:.\d]*\]`)
	spaces    = regexp.MustCompile(`\s+`)
)

// hallucinations are lines whisper invents for silent clips.
var hallucinations = map[string]bool{
	"":                        true,
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thank you":               true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"bye.":                    true,
	"the end.":                true,
}

// Clean turns a raw whisper transcript into a search query. It returns ""
// when nothing usable was said.
func Clean(s string) string {
	s = timestamp.ReplaceAllString(s, " ")
	s = annotation.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return strings.Trim(s, " .,!?")
}
