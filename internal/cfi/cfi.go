// Package cfi encodes and decodes reading positions as EPUB canonical
// fragment identifiers of the form
//
//	epubcfi(/6/{2*spine+2}!{element path}[:{character offset}])
//
// Only the spine step is interpreted; the element path is carried as an
// opaque string. Sub-spine and multi-fragment addressing are not modelled.
package cfi

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultElementPath addresses the body element of a content document.
const DefaultElementPath = "/4"

// MaxSpineIndex is the largest spine index whose step 2*i+2 fits in an int.
// Encode clamps larger indexes to it.
const MaxSpineIndex = (math.MaxInt - 2) / 2

const (
	prefix     = "epubcfi("
	suffix     = ")"
	spineStep  = "/6/"
	escapeChar = '^'
	specials   = "^[](),;=:"
)

// ErrMalformed is returned by Decode for strings that are not a position.
var ErrMalformed = errors.New("cfi: malformed location")

// Location is a decoded position.
type Location struct {
	SpineIndex  int
	ElementPath string
	Offset      int
	HasOffset   bool
}

// New returns the start of the chapter at spine index i.
func New(i int) Location {
	return Location{SpineIndex: i, ElementPath: DefaultElementPath}
}

// At returns a location at a character offset inside spine index i.
func At(i, offset int) Location {
	return Location{SpineIndex: i, ElementPath: DefaultElementPath, Offset: offset, HasOffset: true}
}

// Normalize returns the canonical form of l: a spine index within
// [0, MaxSpineIndex], a non-empty element path and no offset unless one is
// set and non-negative.
func (l Location) Normalize() Location {
	l.SpineIndex = max(0, min(l.SpineIndex, MaxSpineIndex))
	if l.ElementPath == "" {
		l.ElementPath = DefaultElementPath
	}
	if !l.HasOffset || l.Offset < 0 {
		l.Offset, l.HasOffset = 0, false
	}
	return l
}

// String encodes l.
func (l Location) String() string {
	return Encode(l)
}

// Encode returns the CFI string for l. Decode(Encode(l)) equals l.Normalize().
func Encode(l Location) string {
	l = l.Normalize()

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(spineStep)
	b.WriteString(strconv.Itoa(2*l.SpineIndex + 2))
	b.WriteByte('!')
	b.WriteString(escape(l.ElementPath))
	if l.HasOffset {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l.Offset))
	}
	b.WriteString(suffix)
	return b.String()
}

// Decode parses a CFI string. The epubcfi() wrapper, an id assertion on the
// spine step, the element path and the character offset are all optional;
// an offset without a path applies to the default path.
func Decode(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, prefix) {
		if !strings.HasSuffix(s, suffix) {
			return Location{}, errors.Wrap(ErrMalformed, "unterminated epubcfi(")
		}
		s = s[len(prefix) : len(s)-len(suffix)]
	}
	if s == "" {
		return Location{}, errors.Wrap(ErrMalformed, "empty")
	}

	head, tail, hasPath := cutUnescaped(s, '!')
	loc := Location{ElementPath: DefaultElementPath}

	var err error
	if !hasPath {
		if head, err = cutOffset(head, &loc); err != nil {
			return Location{}, err
		}
	}
	if loc.SpineIndex, err = decodeSpineStep(head); err != nil {
		return Location{}, err
	}
	if !hasPath {
		return loc, nil
	}

	rawPath, err := cutOffset(tail, &loc)
	if err != nil {
		return Location{}, err
	}
	if p := unescape(rawPath); p != "" {
		loc.ElementPath = p
	}
	return loc, nil
}

// cutOffset strips a trailing ":{digits}" from s into loc. Colons inside a
// bracketed assertion are not offsets.
func cutOffset(s string, loc *Location) (string, error) {
	i := lastUnescaped(s, ':')
	if i < 0 || i < lastUnescaped(s, ']') {
		return s, nil
	}
	digits := s[i+1:]
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strings.HasPrefix(digits, "+") {
		return "", errors.Wrapf(ErrMalformed, "character offset %q", digits)
	}
	loc.Offset, loc.HasOffset = n, true
	return s[:i], nil
}

// DecodeOrStart decodes s, mapping any failure to the start of the book.
func DecodeOrStart(s string) Location {
	loc, err := Decode(s)
	if err != nil {
		return New(0)
	}
	return loc
}

// decodeSpineStep parses "/6/{n}" with an optional "[id]" assertion and
// returns (n-2)/2.
func decodeSpineStep(head string) (int, error) {
	if !strings.HasPrefix(head, spineStep) {
		return 0, errors.Wrapf(ErrMalformed, "missing spine step in %q", head)
	}
	rest := head[len(spineStep):]

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, errors.Wrapf(ErrMalformed, "spine step %q", head)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil || n < 2 {
		return 0, errors.Wrapf(ErrMalformed, "spine step %q", rest[:end])
	}

	if assertion := rest[end:]; assertion != "" {
		if assertion[0] != '[' || lastUnescaped(assertion, ']') != len(assertion)-1 {
			return 0, errors.Wrapf(ErrMalformed, "trailing %q after spine step", assertion)
		}
	}
	return (n - 2) / 2, nil
}

func escape(s string) string {
	if !strings.ContainsAny(s, specials) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specials, r) {
			b.WriteRune(escapeChar)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unescape(s string) string {
	if !strings.ContainsRune(s, escapeChar) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == escapeChar && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// cutUnescaped splits s around the first sep not preceded by the escape
// character.
func cutUnescaped(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case escapeChar:
			i++
		case sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// lastUnescaped returns the index of the last unescaped sep in s, or -1.
func lastUnescaped(s string, sep byte) int {
	last := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case escapeChar:
			i++
		case sep:
			last = i
		}
	}
	return last
}
