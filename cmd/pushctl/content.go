package main

import "strings"

type field struct {
	key, value string
}

// header keeps fields in the order they are written.
type header []field

// buildContent renders a "---" header block followed by body. Empty values
// are left out; without any fields the body is returned as is.
func buildContent(h header, body string) string {
	var b strings.Builder
	for _, f := range h {
		if f.value == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("---\n")
		}
		b.WriteString(f.key)
		b.WriteString(": ")
		b.WriteString(f.value)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return body
	}
	b.WriteString("---\n")
	b.WriteString(body)
	return b.String()
}
