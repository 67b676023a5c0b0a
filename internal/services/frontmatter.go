package services

import (
	"regexp"
	"strings"
)

var (
	headerBlock = regexp.MustCompile(`^---\s*\n([\s\S]*?)\n\s*---`)
	headerStrip = regexp.MustCompile(`^---\s*\n[\s\S]*?\n\s*---[ \t]*(\r?\n|$)`)
)

// Header is the key/value block at the top of a published message.
type Header map[string]string

// ParseContent splits raw into its optional "---" header block and body.
// Header lines are "key: value"; the value keeps any further colons.
func ParseContent(raw string) (Header, string) {
	trimmed := strings.TrimSpace(raw)
	header := Header{}

	m := headerBlock.FindStringSubmatch(trimmed)
	if m == nil {
		return header, trimmed
	}
	for _, line := range strings.Split(m[1], "\n") {
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		header[key] = strings.TrimSpace(value)
	}

	body := headerStrip.ReplaceAllString(trimmed, "")
	return header, strings.TrimSpace(body)
}
