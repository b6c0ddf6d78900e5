package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the LUW script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenEOL
	TokenError

	// Literals
	TokenWord     // bare word: echo, hello-world, /usr/bin
	TokenString   // "hello world" or 'hello world'
	TokenNumber   // 42, 3.14
	TokenVariable // $name, ${name}, $env:NAME

	// Flags and operators
	TokenFlag   // --mkdir, --n
	TokenAssign // =
	TokenEq     // ==
	TokenNe     // !=

	// Directives and keywords
	TokenDirective // !multithread, !mt, !pwsh, !cmd, !SuppressDebug, ...
	TokenRawTail   // verbatim remainder of a passthrough line
	TokenIf
	TokenElse
	TokenEnd

	// Cluster separator
	TokenAmp // &
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenEOL:       "EOL",
	TokenError:     "ERROR",
	TokenWord:      "WORD",
	TokenString:    "STRING",
	TokenNumber:    "NUMBER",
	TokenVariable:  "VARIABLE",
	TokenFlag:      "FLAG",
	TokenAssign:    "=",
	TokenEq:        "==",
	TokenNe:        "!=",
	TokenDirective: "DIRECTIVE",
	TokenRawTail:   "RAW",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenEnd:       "end",
	TokenAmp:       "&",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position identifies a location in script source.
type Position struct {
	Offset int // byte offset, 0-based
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the decoded text (quotes and escapes resolved)
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types. The lexer types these
// unconditionally wherever they appear; the parser decides whether a
// given occurrence opens a conditional or is an ordinary argument.
var reservedWords = map[string]TokenType{
	"if":   TokenIf,
	"else": TokenElse,
	"end":  TokenEnd,
}

// Directives whose remainder is captured verbatim rather than tokenized.
var rawTailDirectives = map[string]bool{
	"!pwsh": true,
	"!cmd":  true,
}

// IsWordChar returns true if r may appear inside a bare word.
// A backslash is a word character so escapes like \& survive into
// readWord, which resolves them.
func IsWordChar(r rune) bool {
	switch r {
	case 0, ' ', '\t', '\n', '\r', '"', '\'', '&', '$', '=':
		return false
	}
	return true
}
