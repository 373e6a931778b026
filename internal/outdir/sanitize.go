package outdir

import (
	"strings"
	"unicode"
)

// unsafeReplacer maps characters that are unsafe in folder names on common
// filesystems. Separators become dashes; the rest are dropped.
var unsafeReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// sanitize makes stem safe to use as a folder name prefix. Whitespace runs
// collapse to a single underscore and control characters are removed.
func sanitize(stem string) string {
	stem = unsafeReplacer.Replace(strings.TrimSpace(stem))
	var b strings.Builder
	space := false
	for _, r := range stem {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte('_')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
