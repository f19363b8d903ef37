package git

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/apkedit/internal/service"
)

// Status summarizes git status --porcelain --branch output.
type Status struct {
	Branch  string
	Changed int
}

// String returns the status bar text.
func (s Status) String() string {
	if s.Changed == 0 {
		return fmt.Sprintf("git: %s, clean", s.Branch)
	}
	return fmt.Sprintf("git: %s, %d changed", s.Branch, s.Changed)
}

// ParseStatus parses porcelain v1 status output.
func ParseStatus(out string) Status {
	var st Status
	for _, line := range strings.Split(out, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "## "):
			st.Branch = parseBranch(line[3:])
		default:
			st.Changed++
		}
	}
	return st
}

// parseBranch handles "main...origin/main [ahead 1]" and
// "No commits yet on main".
func parseBranch(s string) string {
	if rest, ok := strings.CutPrefix(s, "No commits yet on "); ok {
		s = rest
	}
	if i := strings.Index(s, "..."); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return s
}

// ParseGrep parses git grep -n output. Lines that do not carry a path and
// line number are skipped.
func ParseGrep(out string) []service.Match {
	var matches []service.Match
	for _, line := range strings.Split(out, "\n") {
		path, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		num, text, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		matches = append(matches, service.Match{Path: path, Line: n, Text: text})
	}
	return matches
}
