package datasets

import (
	"github.com/pkg/errors"
)

// checkDictLiteral accepts a flat Python dict literal: quoted keys mapped to
// quoted strings, numbers, None, True or False, with an optional trailing
// comma. jsonrepair would otherwise quote bare words and insert missing
// commas, turning a broken field into a plausible entity.
func checkDictLiteral(s string) error {
	l := literal{s: s}
	l.space()
	if !l.take('{') {
		return l.errorf("expected '{'")
	}
	l.space()
	if l.take('}') {
		return l.end()
	}
	for {
		l.space()
		if err := l.str(); err != nil {
			return err
		}
		l.space()
		if !l.take(':') {
			return l.errorf("expected ':'")
		}
		l.space()
		if err := l.value(); err != nil {
			return err
		}
		l.space()
		if l.take('}') {
			return l.end()
		}
		if !l.take(',') {
			return l.errorf("expected ',' or '}'")
		}
		l.space()
		if l.take('}') {
			return l.end()
		}
	}
}

// literal scans bytes; every delimiter is ASCII so multibyte text inside
// strings passes through untouched.
type literal struct {
	s   string
	pos int
}

func (l *literal) errorf(format string, args ...any) error {
	return errors.Errorf("offset %d: "+format, append([]any{l.pos}, args...)...)
}

func (l *literal) peek() byte {
	if l.pos >= len(l.s) {
		return 0
	}
	return l.s[l.pos]
}

func (l *literal) take(c byte) bool {
	if l.peek() == c && l.pos < len(l.s) {
		l.pos++
		return true
	}
	return false
}

func (l *literal) space() {
	for l.pos < len(l.s) {
		switch l.s[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *literal) end() error {
	l.space()
	if l.pos != len(l.s) {
		return l.errorf("trailing text")
	}
	return nil
}

func (l *literal) str() error {
	q := l.peek()
	if q != '\'' && q != '"' {
		return l.errorf("expected quoted string")
	}
	start := l.pos
	l.pos++
	for l.pos < len(l.s) {
		switch l.s[l.pos] {
		case '\\':
			l.pos += 2
		case q:
			l.pos++
			return nil
		default:
			l.pos++
		}
	}
	l.pos = start
	return l.errorf("unterminated string")
}

func (l *literal) value() error {
	c := l.peek()
	switch {
	case c == '\'' || c == '"':
		return l.str()
	case c == '-' || isDigit(c):
		return l.number()
	}
	start := l.pos
	for l.pos < len(l.s) && isIdent(l.s[l.pos]) {
		l.pos++
	}
	switch l.s[start:l.pos] {
	case "None", "True", "False":
		return nil
	}
	l.pos = start
	return l.errorf("unexpected value")
}

func (l *literal) number() error {
	l.take('-')
	if !l.digits() {
		return l.errorf("expected digits")
	}
	if l.take('.') && !l.digits() {
		return l.errorf("expected digits after '.'")
	}
	return nil
}

func (l *literal) digits() bool {
	start := l.pos
	for l.pos < len(l.s) && isDigit(l.s[l.pos]) {
		l.pos++
	}
	return l.pos > start
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
