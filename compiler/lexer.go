package compiler

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: line-oriented tokenizer for LUW script source
// ---------------------------------------------------------------------------

// Lexer tokenizes LUW script source. Statements are lines, so newlines
// are significant and surface as TokenEOL.
type Lexer struct {
	input     string
	pos       int  // current position in input
	readPos   int  // reading position (after current char)
	ch        rune // current character
	line      int  // current line (1-based)
	col       int  // current column (1-based)
	lineStart bool // no token emitted yet on this line
	rawNext   bool // next token is the verbatim tail of a passthrough line
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:     input,
		line:      1,
		col:       1,
		lineStart: true,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		l.ch = r
		l.pos = l.readPos
		l.readPos += size

		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if l.rawNext {
		l.rawNext = false
		return l.readRawTail()
	}

	l.skipBlanksAndComments()

	pos := l.position()
	atStart := l.lineStart
	l.lineStart = false

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '\n':
		l.readChar()
		l.lineStart = true
		return Token{Type: TokenEOL, Literal: "\n", Pos: pos}

	case l.ch == '&':
		l.readChar()
		return Token{Type: TokenAmp, Literal: "&", Pos: pos}

	case l.ch == '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return Token{Type: TokenEq, Literal: "==", Pos: pos}
		}
		return Token{Type: TokenAssign, Literal: "=", Pos: pos}

	case l.ch == '!' && l.peekChar() == '=':
		l.readChar()
		l.readChar()
		return Token{Type: TokenNe, Literal: "!=", Pos: pos}

	case l.ch == '!':
		return l.readDirective(pos, atStart)

	case l.ch == '$':
		return l.readVariable(pos)

	case l.ch == '"' || l.ch == '\'':
		return l.readString(pos)

	case l.ch == '-' && l.peekChar() == '-':
		return l.readFlag(pos)

	case IsWordChar(l.ch):
		return l.readWord(pos)

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: string(ch), Pos: pos}
	}
}

// skipBlanksAndComments skips spaces, tabs, carriage returns and
// #-comments. Newlines are tokens and are not skipped.
func (l *Lexer) skipBlanksAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		break
	}
}

// readDirective reads a !-prefixed directive keyword such as
// !multithread or !pwsh. A passthrough directive at the start of a line
// switches the lexer into raw-tail mode: the remainder of the line is
// forwarded verbatim to the external shell.
func (l *Lexer) readDirective(pos Position, atLineStart bool) Token {
	start := l.pos
	l.readChar() // consume !
	if !isLetter(l.ch) {
		ch := l.ch
		if ch != 0 {
			l.readChar()
		}
		return Token{Type: TokenError, Literal: string(ch), Pos: pos}
	}
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '-' {
		l.readChar()
	}
	literal := l.input[start:l.pos]

	if atLineStart && rawTailDirectives[strings.ToLower(literal)] {
		l.rawNext = true
	}
	return Token{Type: TokenDirective, Literal: literal, Pos: pos}
}

// readRawTail captures the rest of the current line verbatim.
func (l *Lexer) readRawTail() Token {
	for l.ch == ' ' || l.ch == '\t' {
		l.readChar()
	}
	pos := l.position()
	start := l.pos
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	return Token{Type: TokenRawTail, Literal: strings.TrimRight(l.input[start:l.pos], " \t\r"), Pos: pos}
}

// readVariable reads $name, ${name} or $env:NAME. The literal keeps
// its source spelling; the parser extracts the variable name.
func (l *Lexer) readVariable(pos Position) Token {
	start := l.pos
	l.readChar() // consume $

	if l.ch == '{' {
		l.readChar()
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
		if l.ch != '}' {
			return Token{Type: TokenError, Literal: string(l.ch), Pos: l.position()}
		}
		l.readChar()
		return Token{Type: TokenVariable, Literal: l.input[start:l.pos], Pos: pos}
	}

	if !isLetter(l.ch) && l.ch != '_' {
		ch := l.ch
		if ch != 0 {
			l.readChar()
		}
		return Token{Type: TokenError, Literal: string(ch), Pos: pos}
	}
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	// $env:NAME form
	if l.ch == ':' && l.input[start:l.pos] == "$env" {
		l.readChar()
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
			l.readChar()
		}
	}
	return Token{Type: TokenVariable, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a quoted string literal with backslash escapes.
// Both "double" and 'single' quotes are accepted; the closing quote
// must match the opening one.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar() // consume opening quote

	var sb strings.Builder
	for l.ch != 0 && l.ch != '\n' {
		if l.ch == '\\' {
			next := l.peekChar()
			switch next {
			case quote, '\\':
				sb.WriteRune(next)
				l.readChar()
				l.readChar()
				continue
			case 'n':
				sb.WriteByte('\n')
				l.readChar()
				l.readChar()
				continue
			case 't':
				sb.WriteByte('\t')
				l.readChar()
				l.readChar()
				continue
			}
			sb.WriteRune(l.ch)
			l.readChar()
			continue
		}
		if l.ch == quote {
			l.readChar() // consume closing quote
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	// Unterminated: report the opening quote as the offending character.
	return Token{Type: TokenError, Literal: string(quote), Pos: pos}
}

// readFlag reads a --flag token. The literal keeps the leading dashes.
func (l *Lexer) readFlag(pos Position) Token {
	start := l.pos
	l.readChar() // first -
	l.readChar() // second -
	for IsWordChar(l.ch) && l.ch != '\\' {
		l.readChar()
	}
	return Token{Type: TokenFlag, Literal: l.input[start:l.pos], Pos: pos}
}

// readWord reads a bare word, resolving \& and \\ escapes. A word of
// plain digits (with at most one dot) becomes a number token, and the
// reserved words if/else/end get their own types at line start.
func (l *Lexer) readWord(pos Position) Token {
	var sb strings.Builder
	for IsWordChar(l.ch) {
		if l.ch == '\\' {
			next := l.peekChar()
			if next == '&' || next == '\\' {
				sb.WriteRune(next)
				l.readChar()
				l.readChar()
				continue
			}
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	literal := sb.String()

	if isNumeric(literal) {
		return Token{Type: TokenNumber, Literal: literal, Pos: pos}
	}
	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenWord, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for _, r := range s {
		if r == '.' {
			dots++
			if dots > 1 {
				return false
			}
			continue
		}
		if !isDigit(r) {
			return false
		}
	}
	return s != "."
}

// Tokenize returns all tokens from the input, stopping at the first
// unrecognized character.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			ch, _ := utf8.DecodeRuneInString(tok.Literal)
			return tokens, &LexError{Pos: tok.Pos, Char: ch}
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}
