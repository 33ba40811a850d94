package credentials

import (
	"regexp"
	"strings"
)

// plainValue matches values which need no quoting to be read back unchanged.
var plainValue = regexp.MustCompile(`^[A-Za-z0-9_.~:/+=@%,-]*$`)

// formatLine returns the KEY=VALUE line for the entry, quoting the value if needed.
func formatLine(key, value string) string {
	switch {
	case plainValue.MatchString(value):
	case !strings.ContainsAny(value, "'\n\r") && !strings.HasSuffix(value, `\`):
		value = "'" + value + "'"
	default:
		value = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "\n", `\n`, "\r", `\r`).Replace(value) + `"`
	}
	return key + "=" + value
}

// lineKey returns the key assigned by line, if any.
func lineKey(line string) (string, bool) {
	l := strings.TrimSpace(line)
	if l == "" || strings.HasPrefix(l, "#") {
		return "", false
	}
	if rest, found := strings.CutPrefix(l, "export"); found && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
		l = strings.TrimSpace(rest)
	}

	key, _, found := strings.Cut(l, "=")
	if !found {
		return "", false
	}
	return strings.TrimSpace(key), true
}

// openQuote returns the quote opening a value of the assignment line which is not closed on
// that line, or 0.
func openQuote(line string) byte {
	_, value, _ := strings.Cut(line, "=")
	value = strings.TrimLeft(value, " \t")
	if value == "" || (value[0] != '"' && value[0] != '\'') {
		return 0
	}
	if closingQuote(value[1:], value[0], value[0]) >= 0 {
		return 0
	}
	return value[0]
}

// closingQuote returns the index in s of the first quote not preceded by a backslash, or -1.
// prev is the character preceding s.
func closingQuote(s string, quote, prev byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == quote && prev != '\\' {
			return i
		}
		prev = s[i]
	}
	return -1
}

// mergeLines replaces every assignment of one of the entries keys, and appends the entries
// whose key is not assigned yet. Other lines, including the continuation lines of quoted
// values, are kept verbatim.
func mergeLines(content string, entries []entry) string {
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.key] = e.value
	}

	lines := strings.Split(content, "\n")
	merged := make([]string, 0, len(lines)+len(entries))
	replaced := make(map[string]bool)
	for i := 0; i < len(lines); i++ {
		l := lines[i]
		key, isAssignment := lineKey(l)

		// A multi-line quoted value ends on the line closing its quote.
		end := i
		if isAssignment {
			if q := openQuote(l); q != 0 {
				for end+1 < len(lines) {
					end++
					if closingQuote(lines[end], q, '\n') >= 0 {
						break
					}
				}
			}
		}

		v, ok := values[key]
		if !isAssignment || !ok {
			merged = append(merged, lines[i:end+1]...)
			i = end
			continue
		}

		eol := ""
		if strings.HasSuffix(lines[end], "\r") {
			eol = "\r"
		}
		merged = append(merged, formatLine(key, v)+eol)
		replaced[key] = true
		i = end
	}

	// A trailing newline leaves an empty last element, which must stay last.
	var tail []string
	if n := len(merged); n > 0 && merged[n-1] == "" {
		merged, tail = merged[:n-1], merged[n-1:]
	}
	appended := false
	for _, e := range entries {
		if replaced[e.key] {
			continue
		}
		merged = append(merged, formatLine(e.key, e.value))
		appended = true
	}
	if tail == nil && appended {
		tail = []string{""}
	}
	merged = append(merged, tail...)

	return strings.Join(merged, "\n")
}
