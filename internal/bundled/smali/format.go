package smali

import (
	"strings"
)

const indent = "    "

// blockDirectives open a block closed by the matching .end directive.
var blockDirectives = map[string]bool{
	".method":        true,
	".annotation":    true,
	".subannotation": true,
	".packed-switch": true,
	".sparse-switch": true,
	".array-data":    true,
}

// Format re-indents smali source. Lines inside blocks are indented one
// level per enclosing block, trailing whitespace is dropped and runs of
// blank lines are collapsed to one.
func Format(src string) (string, error) {
	var b strings.Builder
	depth := 0
	blank := false

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if b.Len() > 0 {
				blank = true
			}
			continue
		}
		if blank {
			b.WriteByte('\n')
			blank = false
		}

		directive := firstField(line)
		if directive == ".end" && depth > 0 && closesBlock(line) {
			depth--
		}

		b.WriteString(strings.Repeat(indent, depth))
		b.WriteString(line)
		b.WriteByte('\n')

		if blockDirectives[directive] {
			depth++
		}
	}
	return b.String(), nil
}

func firstField(line string) string {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i]
	}
	return line
}

// closesBlock reports whether an .end line closes one of blockDirectives.
func closesBlock(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	return blockDirectives["."+fields[1]]
}
