package ical

import (
	"strings"
	"unicode/utf8"
)

const maxLineOctets = 75

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	"\r\n", `\n`,
	"\r", `\n`,
	"\n", `\n`,
)

var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\;`, `;`,
	`\,`, `,`,
	`\n`, "\n",
	`\N`, "\n",
)

// EscapeText escapes a TEXT value per RFC 5545 section 3.3.11.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

func UnescapeText(s string) string {
	return textUnescaper.Replace(s)
}

// paramValue quotes a parameter value when it contains separators.
func paramValue(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	if strings.ContainsAny(s, ":;,") {
		return `"` + s + `"`
	}
	return s
}

// fold splits a content line into 75-octet chunks joined by CRLF + space,
// never cutting through a multi-byte rune.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}
	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// continuation lines carry the leading space
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	return b.String()
}

// unfold joins continuation lines and normalises line endings.
func unfold(data string) []string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")

	raw := strings.Split(data, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
