// Package bibtex checks that embedded bibliographic records are well-formed
// BibTeX/BibLaTeX.
package bibtex

import (
	"fmt"
	"strings"
	"unicode"
)

// Parser validates a bibliographic record.
type Parser interface {
	Parse(text string) error
}

// Entry is one parsed record.
type Entry struct {
	Type   string
	Key    string
	Fields map[string]string
}

// SyntaxError reports the position of a malformed construct.
type SyntaxError struct {
	Line, Column int
	Msg          string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bibtex: line %d column %d: %s", e.Line, e.Column, e.Msg)
}

// EntryParser is a structural parser: entry type, citation key, and
// comma-separated field assignments with braced, quoted, numeric or macro
// values. It does not interpret field contents.
type EntryParser struct {
	// RequireEntry rejects input without any regular entry.
	RequireEntry bool
}

// Parse implements Parser.
func (p EntryParser) Parse(text string) error {
	entries, err := p.Entries(text)
	if err != nil {
		return err
	}
	if p.RequireEntry && len(entries) == 0 {
		return &SyntaxError{Line: 1, Column: 1, Msg: "no entry found"}
	}
	return nil
}

// Entries parses text and returns the regular entries it contains.
func (p EntryParser) Entries(text string) ([]Entry, error) {
	s := &scanner{src: []rune(text), line: 1, col: 1}
	var entries []Entry
	for {
		s.skipJunk()
		if s.eof() {
			return entries, nil
		}
		e, err := s.entry()
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}
}

type scanner struct {
	src       []rune
	pos       int
	line, col int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() rune {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) next() rune {
	r := s.src[s.pos]
	s.pos++
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) errorf(format string, args ...any) error {
	return &SyntaxError{Line: s.line, Column: s.col, Msg: fmt.Sprintf(format, args...)}
}

// skipJunk skips text outside entries, which BibTeX treats as comments.
func (s *scanner) skipJunk() {
	for !s.eof() && s.peek() != '@' {
		s.next()
	}
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		r := s.peek()
		if r == '%' {
			for !s.eof() && s.peek() != '\n' {
				s.next()
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		s.next()
	}
}

func (s *scanner) expect(r rune) error {
	s.skipSpace()
	if s.eof() {
		return s.errorf("expected %q, got end of input", r)
	}
	if got := s.peek(); got != r {
		return s.errorf("expected %q, got %q", r, got)
	}
	s.next()
	return nil
}

func isIdent(r rune) bool {
	return r != 0 && !unicode.IsSpace(r) && !strings.ContainsRune(`{}(),=#"%@`, r)
}

func (s *scanner) ident() string {
	s.skipSpace()
	start := s.pos
	for !s.eof() && isIdent(s.peek()) {
		s.next()
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) entry() (*Entry, error) {
	s.next() // '@'
	typ := strings.ToLower(s.ident())
	if typ == "" {
		return nil, s.errorf("missing entry type")
	}
	s.skipSpace()
	if s.eof() {
		return nil, s.errorf("unterminated @%s", typ)
	}
	open := s.next()
	var closer rune
	switch open {
	case '{':
		closer = '}'
	case '(':
		closer = ')'
	default:
		return nil, s.errorf("expected '{' or '(' after @%s", typ)
	}

	switch typ {
	case "comment":
		if err := s.skipBalanced(open, closer); err != nil {
			return nil, err
		}
		return nil, nil
	case "preamble":
		if _, err := s.value(); err != nil {
			return nil, err
		}
		return nil, s.expect(closer)
	case "string":
		if _, _, err := s.field(); err != nil {
			return nil, err
		}
		return nil, s.expect(closer)
	}

	key := s.ident()
	if key == "" {
		return nil, s.errorf("@%s entry without citation key", typ)
	}
	e := &Entry{Type: typ, Key: key, Fields: make(map[string]string)}
	for {
		s.skipSpace()
		if s.eof() {
			return nil, s.errorf("unterminated @%s{%s", typ, key)
		}
		switch s.peek() {
		case closer:
			s.next()
			return e, nil
		case ',':
			s.next()
			s.skipSpace()
			if s.peek() == closer {
				continue
			}
			name, value, err := s.field()
			if err != nil {
				return nil, err
			}
			if _, dup := e.Fields[name]; dup {
				return nil, s.errorf("duplicate field %q in %s", name, key)
			}
			e.Fields[name] = value
		default:
			return nil, s.errorf("expected ',' or %q in %s, got %q", closer, key, s.peek())
		}
	}
}

// field parses name = value and returns the lower-cased name with the raw
// value text.
func (s *scanner) field() (string, string, error) {
	name := strings.ToLower(s.ident())
	if name == "" {
		return "", "", s.errorf("missing field name")
	}
	if err := s.expect('='); err != nil {
		return "", "", err
	}
	value, err := s.value()
	return name, value, err
}

// value parses a concatenation of braced, quoted, numeric or macro parts
// and returns the raw text.
func (s *scanner) value() (string, error) {
	s.skipSpace()
	start := s.pos
	for {
		s.skipSpace()
		if s.eof() {
			return "", s.errorf("missing value")
		}
		switch r := s.peek(); {
		case r == '{':
			s.next()
			if err := s.skipBalanced('{', '}'); err != nil {
				return "", err
			}
		case r == '"':
			s.next()
			if err := s.quoted(); err != nil {
				return "", err
			}
		case isIdent(r):
			s.ident()
		default:
			return "", s.errorf("unexpected %q in value", r)
		}
		end := s.pos
		s.skipSpace()
		if s.peek() != '#' {
			return strings.TrimSpace(string(s.src[start:end])), nil
		}
		s.next()
	}
}

func (s *scanner) quoted() error {
	depth := 0
	for !s.eof() {
		r := s.next()
		switch {
		case r == '{':
			depth++
		case r == '}':
			if depth == 0 {
				return s.errorf("unbalanced '}' in quoted value")
			}
			depth--
		case r == '"' && depth == 0:
			return nil
		}
	}
	return s.errorf("unterminated quoted value")
}

// skipBalanced consumes up to and including the closer matching an
// already-consumed opener.
func (s *scanner) skipBalanced(open, closer rune) error {
	depth := 1
	for !s.eof() {
		switch s.next() {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return s.errorf("unbalanced %q", open)
}

var _ Parser = EntryParser{}
