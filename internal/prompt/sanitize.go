package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxPayloadBytes bounds each payload embedded in a prompt.
const DefaultMaxPayloadBytes = 64 * 1024

// zeroWidthSpace is inserted after '<' to break a tag without visibly
// changing the text.
const zeroWidthSpace = "\u200b"

// Sanitize neutralizes every opening or closing occurrence of tag (matched
// case-insensitively) in payload, so the payload cannot end or restart the
// section it is embedded in.
func Sanitize(payload, tag string) string {
	if tag == "" || !strings.Contains(payload, "<") {
		return payload
	}
	var b strings.Builder
	b.Grow(len(payload))
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		b.WriteByte(c)
		if c != '<' {
			continue
		}
		rest := strings.TrimPrefix(payload[i+1:], "/")
		if len(rest) >= len(tag) && strings.EqualFold(rest[:len(tag)], tag) {
			b.WriteString(zeroWidthSpace)
		}
	}
	return b.String()
}

// Truncate returns s unchanged if it fits in max bytes. Otherwise it cuts s
// at the last rune boundary within max and appends a marker naming the
// number of bytes dropped.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker(len(s)-cut)
}

func truncationMarker(dropped int) string {
	return fmt.Sprintf("\n[... truncated %d bytes ...]", dropped)
}

// wrap embeds payload between one real pair of tag delimiters.
func wrap(tag, payload string, max int) string {
	body := Truncate(Sanitize(payload, tag), max)
	return "<" + tag + ">\n" + strings.TrimRight(body, "\n") + "\n</" + tag + ">"
}
