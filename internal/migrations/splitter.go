package migrations

import (
	"strings"

	"github.com/ksred/catalog-migrate/internal/utils"
)

// scanState is the position of the SQL scanner relative to comments and
// string literals. Scanning rules: `--` line comments, non-nesting /* */
// block comments, single-quoted literals with '' doubling as the only escape,
// double-quoted identifiers, and untagged $$ dollar quoting.
type scanState int

const (
	stateNormal scanState = iota
	stateLineComment
	stateBlockComment
	stateSingleQuote
	stateDoubleQuote
	stateDollarQuote
)

// StripComments removes line and block comments from sql. Comment markers
// inside quoted strings or dollar-quoted bodies are left untouched. Block
// comments are replaced with a single space so adjacent tokens stay separate.
func StripComments(sql string) (string, error) {
	var out strings.Builder
	out.Grow(len(sql))

	state := stateNormal
	start := 0

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch state {
		case stateNormal:
			switch {
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				start = i
				i++
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stateBlockComment
				start = i
				i++
			case c == '$' && i+1 < len(sql) && sql[i+1] == '$':
				state = stateDollarQuote
				start = i
				out.WriteString("$$")
				i++
			case c == '\'':
				state = stateSingleQuote
				start = i
				out.WriteByte(c)
			case c == '"':
				state = stateDoubleQuote
				start = i
				out.WriteByte(c)
			default:
				out.WriteByte(c)
			}

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}

		case stateBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				state = stateNormal
				out.WriteByte(' ')
				i++
			}

		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					// Doubled quote stays inside the literal.
					out.WriteByte('\'')
					i++
				} else {
					state = stateNormal
				}
			}

		case stateDoubleQuote:
			out.WriteByte(c)
			if c == '"' {
				state = stateNormal
			}

		case stateDollarQuote:
			if c == '$' && i+1 < len(sql) && sql[i+1] == '$' {
				state = stateNormal
				out.WriteString("$$")
				i++
			} else {
				out.WriteByte(c)
			}
		}
	}

	if err := checkTerminated(state, start); err != nil {
		return "", err
	}
	return out.String(), nil
}

// SplitStatements splits sql on statement-terminating semicolons using the
// same quote-aware scan as StripComments, so a semicolon inside a string
// literal or function body never splits a statement. Blank statements are
// dropped; trailing text without a semicolon counts as a final statement.
func SplitStatements(sql string) ([]string, error) {
	var statements []string
	var current strings.Builder

	state := stateNormal
	start := 0

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				if stmt := strings.TrimSpace(current.String()); stmt != "" {
					statements = append(statements, stmt)
				}
				current.Reset()
				continue
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
				start = i
				i++
				continue
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stateBlockComment
				start = i
				i++
				continue
			case c == '$' && i+1 < len(sql) && sql[i+1] == '$':
				state = stateDollarQuote
				start = i
				current.WriteString("$$")
				i++
				continue
			case c == '\'':
				state = stateSingleQuote
				start = i
			case c == '"':
				state = stateDoubleQuote
				start = i
			}
			current.WriteByte(c)

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				current.WriteByte(c)
			}

		case stateBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				state = stateNormal
				current.WriteByte(' ')
				i++
			}

		case stateSingleQuote:
			current.WriteByte(c)
			if c == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					current.WriteByte('\'')
					i++
				} else {
					state = stateNormal
				}
			}

		case stateDoubleQuote:
			current.WriteByte(c)
			if c == '"' {
				state = stateNormal
			}

		case stateDollarQuote:
			if c == '$' && i+1 < len(sql) && sql[i+1] == '$' {
				state = stateNormal
				current.WriteString("$$")
				i++
			} else {
				current.WriteByte(c)
			}
		}
	}

	if err := checkTerminated(state, start); err != nil {
		return nil, err
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements, nil
}

func checkTerminated(state scanState, start int) error {
	switch state {
	case stateBlockComment:
		return utils.NewParseError("block comment", start)
	case stateSingleQuote:
		return utils.NewParseError("string literal", start)
	case stateDoubleQuote:
		return utils.NewParseError("quoted identifier", start)
	case stateDollarQuote:
		return utils.NewParseError("dollar-quoted string", start)
	}
	return nil
}
