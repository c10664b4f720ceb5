package safeeval

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/docalc/docalc/pkg/schema"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokString  // '...' or "..."
	tokFString // f'...' or f"..." (raw template content, unparsed)
	tokOp      // + - * / // % ** ( ) , < <= > >= == != . [
)

type token struct {
	kind tokenKind
	text string  // operator text, identifier, or raw string content
	num  float64 // valid for tokNumber
	isInt bool
	intVal int64
	pos  int
}

type lexer struct {
	src    string
	pos    int
	tokens []token
}

// lex tokenizes the whole input up front so the parser can look ahead
// freely. Unknown characters are syntax errors.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c >= '0' && c <= '9' || c == '.' && l.peekDigit():
			if err := l.lexNumber(); err != nil {
				return nil, err
			}
		case isIdentStart(rune(c)):
			l.lexIdentOrFString()
		case c == '\'' || c == '"':
			if err := l.lexString(tokString); err != nil {
				return nil, err
			}
		default:
			if err := l.lexOperator(); err != nil {
				return nil, err
			}
		}
	}
	l.tokens = append(l.tokens, token{kind: tokEOF, pos: len(src)})
	return l.tokens, nil
}

func (l *lexer) peekDigit() bool {
	return l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9'
}

func (l *lexer) lexNumber() error {
	start := l.pos
	sawDot := false
	sawExp := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' && !sawDot && !sawExp {
			// "//" floor division must not be eaten, but '.' followed by a
			// second '.' cannot occur in a number.
			sawDot = true
			l.pos++
			continue
		}
		if (c == 'e' || c == 'E') && !sawExp && l.pos+1 < len(l.src) &&
			(isDigit(l.src[l.pos+1]) || ((l.src[l.pos+1] == '+' || l.src[l.pos+1] == '-') && l.pos+2 < len(l.src) && isDigit(l.src[l.pos+2]))) {
			sawExp = true
			l.pos += 2
			continue
		}
		break
	}
	text := l.src[start:l.pos]
	if !sawDot && !sawExp {
		if iv, err := strconv.ParseInt(text, 10, 64); err == nil {
			l.tokens = append(l.tokens, token{kind: tokNumber, text: text, num: float64(iv), isInt: true, intVal: iv, pos: start})
			return nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeEvalSyntax, "invalid number %q", text)
	}
	l.tokens = append(l.tokens, token{kind: tokNumber, text: text, num: f, pos: start})
	return nil
}

func (l *lexer) lexIdentOrFString() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	name := l.src[start:l.pos]

	// f-string prefix: f'...' / F"..."
	if (name == "f" || name == "F") && l.pos < len(l.src) && (l.src[l.pos] == '\'' || l.src[l.pos] == '"') {
		// The string lexer records the raw content; retag as template.
		_ = l.lexString(tokFString)
		return
	}

	l.tokens = append(l.tokens, token{kind: tokIdent, text: name, pos: start})
}

func (l *lexer) lexString(kind tokenKind) error {
	quote := l.src[l.pos]
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			next := l.src[l.pos+1]
			switch next {
			case '\'', '"', '\\':
				sb.WriteByte(next)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(c)
				sb.WriteByte(next)
			}
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			l.tokens = append(l.tokens, token{kind: kind, text: sb.String(), pos: l.pos})
			return nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return schema.NewError(schema.ErrCodeEvalSyntax, "unterminated string literal")
}

func (l *lexer) lexOperator() error {
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "**", "//", "<=", ">=", "==", "!=":
		l.tokens = append(l.tokens, token{kind: tokOp, text: two, pos: l.pos})
		l.pos += 2
		return nil
	}
	c := l.src[l.pos]
	switch c {
	case '+', '-', '*', '/', '%', '(', ')', ',', '<', '>', '.', '[', ']':
		l.tokens = append(l.tokens, token{kind: tokOp, text: string(c), pos: l.pos})
		l.pos++
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeEvalSyntax, "unexpected character %q at position %d", string(c), l.pos)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
