package datasource

import (
	"strings"
)

// SplitStatements splits a SQL script on semicolons that are outside of
// quoted text and comments. Pieces holding only whitespace or comments
// are dropped.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		hasCode    bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); hasCode && stmt != "" {
			statements = append(statements, stmt)
		}

		current.Reset()

		hasCode = false
	}

	for i := 0; i < len(script); i++ {
		c := script[i]

		switch {
		case c == '\'' || c == '"' || c == '`':
			end := closingQuote(script, i)
			current.WriteString(script[i:end])

			hasCode = true
			i = end - 1
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}

			current.WriteString(script[i : i+end])
			i += end - 1
		case c == '/' && strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				end = len(script) - i
			} else {
				end += 4
			}

			current.WriteString(script[i : i+end])
			i += end - 1
		case c == ';':
			flush()
		default:
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				hasCode = true
			}

			current.WriteByte(c)
		}
	}

	flush()

	return statements
}

// closingQuote returns the index just past the quote closing the one at
// start. A doubled quote character is an escaped quote. Unterminated
// quotes run to the end of the script.
func closingQuote(script string, start int) int {
	quote := script[start]

	for i := start + 1; i < len(script); i++ {
		if script[i] != quote {
			continue
		}

		if i+1 < len(script) && script[i+1] == quote {
			i++

			continue
		}

		return i + 1
	}

	return len(script)
}
