package llm

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrNotLiteral = errors.New("llm: not a field dict literal")

// ParseFields reads a flat dict literal such as {'hour': 8, 'minute': 0}.
// Keys must be quoted strings; values are quoted strings or integers. Nothing
// else is accepted: no nesting, no expressions, no surrounding text.
func ParseFields(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if IsSentinel(s) {
		return nil, fmt.Errorf("%w: sentinel %q", ErrNotLiteral, s)
	}
	p := &literalParser{in: []rune(s)}
	out, err := p.dict()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLiteral, err)
	}
	return out, nil
}

type literalParser struct {
	in  []rune
	pos int
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.in) && unicode.IsSpace(p.in[p.pos]) {
		p.pos++
	}
}

func (p *literalParser) peek() rune {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *literalParser) expect(r rune) error {
	p.skipSpace()
	if p.peek() != r {
		return fmt.Errorf("expected %q at %d", r, p.pos)
	}
	p.pos++
	return nil
}

func (p *literalParser) dict() (map[string]string, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			break
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.skipSpace()
		var val string
		if r := p.peek(); r == '\'' || r == '"' {
			val, err = p.str()
		} else {
			val, err = p.integer()
		}
		if err != nil {
			return nil, err
		}
		out[key] = val

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, fmt.Errorf("expected ',' or '}' at %d", p.pos)
		}
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return nil, fmt.Errorf("trailing data at %d", p.pos)
	}
	if len(out) == 0 {
		return nil, errors.New("empty dict")
	}
	return out, nil
}

func (p *literalParser) str() (string, error) {
	p.skipSpace()
	q := p.peek()
	if q != '\'' && q != '"' {
		return "", fmt.Errorf("expected string at %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.in) {
		r := p.in[p.pos]
		p.pos++
		switch {
		case r == q:
			return b.String(), nil
		case r == '\\':
			if p.pos >= len(p.in) {
				return "", errors.New("dangling escape")
			}
			b.WriteRune(p.in[p.pos])
			p.pos++
		case r == '\n':
			return "", errors.New("newline in string")
		default:
			b.WriteRune(r)
		}
	}
	return "", errors.New("unterminated string")
}

func (p *literalParser) integer() (string, error) {
	start := p.pos
	if r := p.peek(); r == '-' || r == '+' {
		p.pos++
	}
	digits := p.pos
	for p.pos < len(p.in) && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == digits {
		return "", fmt.Errorf("expected value at %d", start)
	}
	return string(p.in[start:p.pos]), nil
}
