// Package datefmt converts between stored epoch values and the site's
// configured date format.
package datefmt

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseable is returned when a date term matches no known layout.
var ErrUnparseable = errors.New("datefmt: unparseable date")

// DefaultFormat is used when no site date format is configured.
const DefaultFormat = "Y-m-d"

var phpTokens = map[byte]string{
	'd': "02",
	'j': "2",
	'D': "Mon",
	'l': "Monday",
	'm': "01",
	'n': "1",
	'M': "Jan",
	'F': "January",
	'Y': "2006",
	'y': "06",
	'a': "pm",
	'A': "PM",
	'g': "3",
	'h': "03",
	'G': "15",
	'H': "15",
	'i': "04",
	's': "05",
	'T': "MST",
	'e': "MST",
	'O': "-0700",
	'P': "-07:00",
}

// Layout converts a PHP style date format such as "F j, Y" into a Go time
// layout. Unsupported tokens are dropped and a backslash quotes the next
// character.
func Layout(format string) string {
	if format == "" {
		format = DefaultFormat
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '\\' && i+1 < len(format) {
			i++
			b.WriteByte(format[i])
			continue
		}
		if tok, ok := phpTokens[c]; ok {
			b.WriteString(tok)
			continue
		}
		switch c {
		case 'S', 'N', 'w', 'z', 'W', 't', 'L', 'o', 'B', 'u', 'v', 'I', 'Z', 'c', 'r', 'U':
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

var fallbackLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// Parse interprets term in loc, trying the site format first, then a set of
// common layouts. A bare integer is taken to be an epoch value.
func Parse(term, format string, loc *time.Location) (time.Time, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return time.Time{}, ErrUnparseable
	}
	if loc == nil {
		loc = time.UTC
	}
	if n, err := strconv.ParseInt(term, 10, 64); err == nil && len(term) > 8 {
		return time.Unix(n, 0).In(loc), nil
	}
	layouts := append([]string{Layout(format)}, fallbackLayouts...)
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, term, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// ParseEpoch is Parse returning a unix timestamp.
func ParseEpoch(term, format string, loc *time.Location) (int64, error) {
	t, err := Parse(term, format, loc)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Epoch parses a stored epoch value. Stored values that are not integers
// are parsed as dates so legacy rows still display.
func Epoch(stored string) (int64, bool) {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(stored, 10, 64); err == nil {
		return n, true
	}
	if t, err := Parse(stored, "", time.UTC); err == nil {
		return t.Unix(), true
	}
	return 0, false
}

// Format renders an epoch value in the site format.
func Format(epoch int64, format string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(epoch, 0).In(loc).Format(Layout(format))
}

// Location resolves a timezone setting. Both IANA names and fixed offsets
// such as "+02:00" or "UTC-5" are accepted; anything else yields UTC.
func Location(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	off := strings.TrimPrefix(strings.TrimPrefix(name, "UTC"), "GMT")
	if off == "" {
		return time.UTC
	}
	sign := 1
	switch off[0] {
	case '+':
		off = off[1:]
	case '-':
		sign = -1
		off = off[1:]
	default:
		return time.UTC
	}
	secs := 0
	if i := strings.IndexByte(off, ':'); i >= 0 {
		hh, err1 := strconv.Atoi(off[:i])
		mm, err2 := strconv.Atoi(off[i+1:])
		if err1 != nil || err2 != nil {
			return time.UTC
		}
		secs = hh*3600 + mm*60
	} else {
		f, err := strconv.ParseFloat(off, 64)
		if err != nil {
			return time.UTC
		}
		secs = int(f * 3600)
	}
	return time.FixedZone(name, sign*secs)
}
