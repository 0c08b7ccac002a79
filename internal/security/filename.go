// Package security holds helpers for handling untrusted identifiers.
package security

import "strings"

// maxFilenameLen caps the length of a sanitised filename.
const maxFilenameLen = 128

// SanitizeFilename makes a safe filename from an arbitrary string such as a
// run ID taken from a request path. Characters other than ASCII letters,
// digits, dot, underscore and dash become a single underscore, leading and
// trailing dots and underscores are trimmed, and an empty result becomes
// "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// AttachmentDisposition returns a Content-Disposition header value for a
// download named name with the given extension.
func AttachmentDisposition(name, ext string) string {
	return "attachment; filename=" + SanitizeFilename(name) + ext
}
