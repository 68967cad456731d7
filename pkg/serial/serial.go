// Package serial reads and writes the array serialisation used by stored
// multi-valued columns, e.g. a:2:{i:0;s:3:"red";i:1;s:4:"blue";}.
package serial

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a value looks serialised but cannot be decoded.
var ErrMalformed = errors.New("malformed serialized value")

var (
	arrayPrefix = regexp.MustCompile(`^a:\d+:\{`)
	objectLike  = regexp.MustCompile(`(?:^|[;{])\s*[OC]:\+?\d+:"`)
)

// Encode serialises vals. A slice without any non-empty element encodes to
// the empty string so that "no value" round-trips as an empty column.
func Encode(vals []string) string {
	if !HasValue(vals) {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "a:%d:{", len(vals))
	for i, v := range vals {
		fmt.Fprintf(&b, "i:%d;s:%d:\"%s\";", i, len(v), v)
	}
	b.WriteString("}")
	return b.String()
}

// HasValue reports whether at least one element is non-empty.
func HasValue(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// IsSerialized reports whether s carries the array serialisation prefix.
func IsSerialized(s string) bool {
	return arrayPrefix.MatchString(strings.TrimSpace(s))
}

// LooksLikeObject reports whether s contains something shaped like a
// serialised object. Such values are never written.
func LooksLikeObject(s string) bool {
	return objectLike.MatchString(s)
}

// Decode parses a serialised array and returns its values in order.
// The empty string decodes to an empty slice.
func Decode(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}, nil
	}
	p := &parser{src: s}
	vals, err := p.array()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: trailing data at %d", ErrMalformed, p.pos)
	}
	return vals, nil
}

// Values decodes s, treating anything that is not a well formed array as a
// single scalar value.
func Values(s string) []string {
	if !IsSerialized(s) {
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
	vals, err := Decode(s)
	if err != nil {
		return []string{s}
	}
	return vals
}

// minElementLen is the shortest encoded key/value pair, e.g. "i:0;N;".
const minElementLen = 6

type parser struct {
	src string
	pos int
}

func (p *parser) fail(what string) error {
	return fmt.Errorf("%w: %s at %d", ErrMalformed, what, p.pos)
}

func (p *parser) expect(tok string) error {
	if !strings.HasPrefix(p.src[p.pos:], tok) {
		return p.fail("expected " + strconv.Quote(tok))
	}
	p.pos += len(tok)
	return nil
}

func (p *parser) readUntil(delim byte) (string, error) {
	i := strings.IndexByte(p.src[p.pos:], delim)
	if i < 0 {
		return "", p.fail("unterminated token")
	}
	tok := p.src[p.pos : p.pos+i]
	p.pos += i + 1
	return tok, nil
}

func (p *parser) readInt(delim byte) (int, error) {
	tok, err := p.readUntil(delim)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, p.fail("bad integer")
	}
	return n, nil
}

func (p *parser) array() ([]string, error) {
	if err := p.expect("a:"); err != nil {
		return nil, err
	}
	n, err := p.readInt(':')
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, p.fail("negative length")
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	// every element needs at least a key and a value token
	if n > (len(p.src)-p.pos)/minElementLen {
		return nil, p.fail("array length exceeds input")
	}
	vals := make([]string, 0, n)
	for i := 0; i < n; i++ {
		// keys are either ints or strings; only values are kept
		if _, err := p.scalar(); err != nil {
			return nil, err
		}
		v, err := p.scalar()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return vals, nil
}

func (p *parser) scalar() (string, error) {
	if p.pos+2 > len(p.src) {
		return "", p.fail("unexpected end")
	}
	kind := p.src[p.pos]
	switch kind {
	case 'N':
		if err := p.expect("N;"); err != nil {
			return "", err
		}
		return "", nil
	case 'i', 'd', 'b':
		p.pos += 2
		if p.src[p.pos-1] != ':' {
			return "", p.fail("expected ':'")
		}
		return p.readUntil(';')
	case 's':
		p.pos += 2
		if p.src[p.pos-1] != ':' {
			return "", p.fail("expected ':'")
		}
		n, err := p.readInt(':')
		if err != nil {
			return "", err
		}
		if err := p.expect(`"`); err != nil {
			return "", err
		}
		if n < 0 || p.pos+n > len(p.src) {
			return "", p.fail("string length out of range")
		}
		v := p.src[p.pos : p.pos+n]
		p.pos += n
		if err := p.expect(`";`); err != nil {
			return "", err
		}
		return v, nil
	default:
		return "", p.fail(fmt.Sprintf("unsupported type %q", kind))
	}
}
