package compiler

import "fmt"

// LexError reports an unrecognized character in script source.
type LexError struct {
	Pos  Position
	Char rune
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %s: unexpected character %q", e.Pos, e.Char)
}

// ParseError reports malformed syntax: what the parser expected versus
// what it found.
type ParseError struct {
	Pos      Position
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: expected %s, found %s", e.Pos, e.Expected, e.Found)
}
