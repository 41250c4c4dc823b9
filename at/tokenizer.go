package at

import (
	"errors"
	"math"
	"strings"
)

var (
	// ErrNoPrefix is returned by NewTokenizer when the line has no
	// "<code>:" prefix to skip.
	ErrNoPrefix = errors.New("at: line has no prefix")

	// ErrNoToken is returned when the tokenizer has no fields left.
	ErrNoToken = errors.New("at: no more tokens")

	// ErrBadInt is returned when a field does not start with a number in
	// the requested base, or the number does not fit in 64 bits.
	ErrBadInt = errors.New("at: malformed integer field")

	// ErrBadBool is returned when a boolean field is neither 0 nor 1.
	ErrBadBool = errors.New("at: malformed boolean field")

	// ErrUnterminatedQuote is returned when a quoted field has no closing
	// quote.
	ErrUnterminatedQuote = errors.New("at: unterminated quoted field")
)

// Tokenizer walks the comma separated fields of a single reply line, for
// example the `0,1,"operator"` part of `+COPS: 0,1,"operator"`.
//
// A field is either a bare run of characters up to the next comma, or a
// quoted string in which a backslash escapes the following character.
// After a quoted field the cursor moves past the next comma, discarding
// anything in between.
type Tokenizer struct {
	line string
	pos  int
	// trailing is set when the last consumed comma ends the line, so one
	// empty field is still to come.
	trailing bool
}

// NewTokenizer skips past the first colon in line and returns a tokenizer
// positioned on the first field.
func NewTokenizer(line string) (*Tokenizer, error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return nil, ErrNoPrefix
	}
	return &Tokenizer{line: line, pos: i + 1}, nil
}

// HasMore reports whether another field can be read.
func (t *Tokenizer) HasMore() bool {
	return t.trailing || !t.exhausted()
}

// NextString returns the next field, with quotes and escapes removed.
func (t *Tokenizer) NextString() (string, error) {
	return t.next()
}

// NextInt parses the next field as a base 10 integer. Like strtol it
// accepts an optional sign and stops at the first non-digit, but at least
// one digit is required.
func (t *Tokenizer) NextInt() (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	v, ok := parseLeadingInt(tok, 10)
	if !ok {
		return 0, ErrBadInt
	}
	return int(v), nil
}

// NextHexInt parses the next field as an unsigned base 16 integer.
func (t *Tokenizer) NextHexInt() (uint64, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	tok = strings.TrimLeft(tok, " \t")
	if strings.HasPrefix(tok, "-") || strings.HasPrefix(tok, "+") {
		return 0, ErrBadInt
	}
	v, ok := parseLeadingInt(tok, 16)
	if !ok {
		return 0, ErrBadInt
	}
	return uint64(v), nil
}

// NextBool parses the next field as a boolean. Only 0 and 1 are accepted.
func (t *Tokenizer) NextBool() (bool, error) {
	v, err := t.NextInt()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrBadBool
	}
}

// CharCount returns the number of occurrences of c in s. Handlers use it
// to tell reply shapes with an optional leading field apart.
func CharCount(s string, c byte) int {
	return strings.Count(s, string(c))
}

func (t *Tokenizer) next() (string, error) {
	if !t.HasMore() {
		return "", ErrNoToken
	}
	t.trailing = false
	t.skipSpace()

	if t.pos < len(t.line) && t.line[t.pos] == '"' {
		return t.quoted()
	}

	rest := t.line[t.pos:]
	if i := strings.IndexByte(rest, ','); i >= 0 {
		t.pos += i + 1
		t.trailing = t.exhausted()
		return rest[:i], nil
	}
	t.pos = len(t.line)
	return rest, nil
}

func (t *Tokenizer) quoted() (string, error) {
	t.pos++
	start := t.pos

	var b *strings.Builder
	for i := start; i < len(t.line); i++ {
		switch c := t.line[i]; c {
		case '\\':
			if i+1 >= len(t.line) {
				t.pos = len(t.line)
				return "", ErrUnterminatedQuote
			}
			if b == nil {
				b = &strings.Builder{}
				b.WriteString(t.line[start:i])
			}
			i++
			b.WriteByte(t.line[i])
		case '"':
			tok := t.line[start:i]
			if b != nil {
				tok = b.String()
			}
			t.pos = i + 1
			t.skipNextComma()
			return tok, nil
		default:
			if b != nil {
				b.WriteByte(c)
			}
		}
	}

	t.pos = len(t.line)
	return "", ErrUnterminatedQuote
}

func (t *Tokenizer) skipNextComma() {
	i := strings.IndexByte(t.line[t.pos:], ',')
	if i < 0 {
		t.pos = len(t.line)
		return
	}
	t.pos += i + 1
	t.trailing = t.exhausted()
}

func (t *Tokenizer) skipSpace() {
	for t.pos < len(t.line) && isSpace(t.line[t.pos]) {
		t.pos++
	}
}

func (t *Tokenizer) exhausted() bool {
	for i := t.pos; i < len(t.line); i++ {
		if !isSpace(t.line[i]) {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func parseLeadingInt(s string, base int64) (int64, bool) {
	s = strings.TrimLeft(s, " \t")
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if base == 16 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s = s[2:]
	}

	var v int64
	digits := 0
	for ; digits < len(s); digits++ {
		d := digitVal(s[digits])
		if d < 0 || d >= base {
			break
		}
		if v > (math.MaxInt64-d)/base {
			return 0, false
		}
		v = v*base + d
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func digitVal(c byte) int64 {
	switch {
	case c >= '0' && c <= '9':
		return int64(c - '0')
	case c >= 'a' && c <= 'f':
		return int64(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int64(c-'A') + 10
	default:
		return -1
	}
}
