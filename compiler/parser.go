package compiler

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: token stream -> Script AST
// ---------------------------------------------------------------------------
//
// The grammar is line-oriented. Every line is an independent statement;
// the only multi-line construct is the if/else/end block, which the
// parser consumes in a single forward pass.

// Parser consumes a token sequence produced by the lexer.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser over the given tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse tokenizes and parses a complete script.
func Parse(src string) (*Script, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseScript()
}

// ParseScript parses all statements up to EOF.
func (p *Parser) ParseScript() (*Script, error) {
	script := &Script{}
	for {
		p.skipEOL()
		if p.cur().Type == TokenEOF {
			return script, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			script.Statements = append(script.Statements, stmt)
		}
	}
}

func (p *Parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) skipEOL() {
	for p.cur().Type == TokenEOL {
		p.advance()
	}
}

// expectEOL consumes the end of the current line.
func (p *Parser) expectEOL() error {
	tok := p.cur()
	if tok.Type == TokenEOL || tok.Type == TokenEOF {
		p.advance()
		return nil
	}
	return &ParseError{Pos: tok.Pos, Expected: "end of line", Found: tok.String()}
}

// parseStatement parses one statement starting at the current token.
func (p *Parser) parseStatement() (Statement, error) {
	tok := p.cur()

	switch tok.Type {
	case TokenDirective:
		return p.parseDirectiveLine()

	case TokenIf:
		return p.parseIf()

	case TokenElse, TokenEnd:
		return nil, &ParseError{Pos: tok.Pos, Expected: "statement", Found: tok.String()}

	case TokenWord:
		// WORD '=' ... is an assignment, anything else a command.
		if p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].Type == TokenAssign {
			return p.parseAssignment()
		}
		return p.parseCommand()

	case TokenNumber, TokenString, TokenVariable:
		return p.parseCommand()

	default:
		return nil, &ParseError{Pos: tok.Pos, Expected: "command, assignment or directive", Found: tok.String()}
	}
}

// parseDirectiveLine dispatches on the directive keyword: cluster
// declarations, passthrough lines, or bare session directives.
func (p *Parser) parseDirectiveLine() (Statement, error) {
	tok := p.advance()
	name := strings.ToLower(tok.Literal)

	switch name {
	case "!multithread", "!mt":
		return p.parseCluster(tok.Pos)

	case "!pwsh", "!cmd":
		kind := ShellPwsh
		if name == "!cmd" {
			kind = ShellCmd
		}
		raw := ""
		if p.cur().Type == TokenRawTail {
			raw = p.advance().Literal
		}
		if err := p.expectEOL(); err != nil {
			return nil, err
		}
		return &CommandStmt{Name: name, Shell: kind, Raw: raw, StartPos: tok.Pos}, nil

	default:
		if err := p.expectEOL(); err != nil {
			return nil, err
		}
		return &DirectiveStmt{Name: tok.Literal, StartPos: tok.Pos}, nil
	}
}

// parseCluster parses the remainder of a !multithread/!mt line into an
// ordered list of member command lines, splitting on unescaped '&'.
// A leading !pwsh/!cmd applies that shell to every member.
func (p *Parser) parseCluster(pos Position) (Statement, error) {
	globalShell := ""
	if p.cur().Type == TokenDirective {
		name := strings.ToLower(p.cur().Literal)
		if name == "!pwsh" || name == "!cmd" {
			globalShell = name
			p.advance()
		}
	}

	var lines []string
	var words []string
	flush := func() {
		line := strings.TrimSpace(strings.Join(words, " "))
		words = words[:0]
		if line == "" {
			return
		}
		if globalShell != "" && !isShellPrefixed(line) {
			line = globalShell + " " + line
		}
		lines = append(lines, line)
	}

	for {
		tok := p.cur()
		switch tok.Type {
		case TokenEOL, TokenEOF:
			flush()
			if err := p.expectEOL(); err != nil {
				return nil, err
			}
			return &ClusterStmt{Lines: lines, StartPos: pos}, nil
		case TokenAmp:
			p.advance()
			flush()
		case TokenError:
			return nil, &ParseError{Pos: tok.Pos, Expected: "cluster member", Found: tok.String()}
		default:
			p.advance()
			words = append(words, renderToken(tok))
		}
	}
}

// isShellPrefixed reports whether a member line carries its own
// passthrough directive.
func isShellPrefixed(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "!pwsh") || strings.HasPrefix(lower, "!cmd")
}

// renderToken renders a token back into command-line form so cluster
// member lines can be re-parsed on their own.
func renderToken(tok Token) string {
	switch tok.Type {
	case TokenString:
		return quoteWord(tok.Literal)
	case TokenWord:
		if strings.ContainsAny(tok.Literal, "&\\") {
			return escapeWord(tok.Literal)
		}
		return tok.Literal
	default:
		return tok.Literal
	}
}

func quoteWord(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func escapeWord(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "&", `\&`)
}

// parseAssignment parses: name = expr.
func (p *Parser) parseAssignment() (Statement, error) {
	nameTok := p.advance()
	p.advance() // consume '='

	value, err := p.parseExprToEOL()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOL(); err != nil {
		return nil, err
	}
	return &AssignStmt{Name: nameTok.Literal, Value: value, StartPos: nameTok.Pos}, nil
}

// parseExprToEOL collects the remaining line tokens into one Expr.
func (p *Parser) parseExprToEOL() (Expr, error) {
	expr := Expr{StartPos: p.cur().Pos}
	for {
		tok := p.cur()
		switch tok.Type {
		case TokenEOL, TokenEOF:
			return expr, nil
		case TokenVariable:
			p.advance()
			expr.Parts = append(expr.Parts, varPart(tok))
		case TokenWord, TokenString, TokenNumber, TokenFlag,
			TokenAssign, TokenEq, TokenNe, TokenIf, TokenElse, TokenEnd:
			p.advance()
			expr.Parts = append(expr.Parts, Part{Kind: PartLiteral, Text: tok.Literal})
		default:
			return expr, &ParseError{Pos: tok.Pos, Expected: "expression", Found: tok.String()}
		}
	}
}

// varPart converts a variable token into an expression part, decoding
// the $name / ${name} / $env:NAME spellings.
func varPart(tok Token) Part {
	lit := tok.Literal
	switch {
	case strings.HasPrefix(lit, "$env:"):
		return Part{Kind: PartVar, Text: lit[len("$env:"):], Env: true}
	case strings.HasPrefix(lit, "${"):
		return Part{Kind: PartVar, Text: strings.TrimSuffix(lit[2:], "}")}
	default:
		return Part{Kind: PartVar, Text: lit[1:]}
	}
}

// parseCommand parses an ordinary command invocation with positional
// arguments and --flag value pairs.
func (p *Parser) parseCommand() (Statement, error) {
	nameTok := p.advance()
	stmt := &CommandStmt{
		Name:     nameTok.Literal,
		Flags:    map[string]Expr{},
		StartPos: nameTok.Pos,
	}

	for {
		tok := p.cur()
		switch tok.Type {
		case TokenEOL, TokenEOF:
			if err := p.expectEOL(); err != nil {
				return nil, err
			}
			return stmt, nil

		case TokenFlag:
			p.advance()
			name := strings.TrimLeft(tok.Literal, "-")
			if value, ok := p.flagValue(); ok {
				stmt.Flags[name] = value
			} else {
				// A trailing flag with no value stays positional.
				stmt.Args = append(stmt.Args, Expr{
					Parts:    []Part{{Kind: PartLiteral, Text: tok.Literal}},
					StartPos: tok.Pos,
				})
			}

		case TokenVariable:
			p.advance()
			stmt.Args = append(stmt.Args, Expr{Parts: []Part{varPart(tok)}, StartPos: tok.Pos})

		case TokenWord, TokenString, TokenNumber, TokenDirective,
			TokenAssign, TokenEq, TokenNe, TokenIf, TokenElse, TokenEnd:
			p.advance()
			stmt.Args = append(stmt.Args, Expr{
				Parts:    []Part{{Kind: PartLiteral, Text: tok.Literal}},
				StartPos: tok.Pos,
			})

		default:
			return nil, &ParseError{Pos: tok.Pos, Expected: "argument or flag", Found: tok.String()}
		}
	}
}

// flagValue consumes the token following a flag when it can serve as
// the flag's value.
func (p *Parser) flagValue() (Expr, bool) {
	tok := p.cur()
	switch tok.Type {
	case TokenWord, TokenString, TokenNumber:
		p.advance()
		return Expr{Parts: []Part{{Kind: PartLiteral, Text: tok.Literal}}, StartPos: tok.Pos}, true
	case TokenVariable:
		p.advance()
		return Expr{Parts: []Part{varPart(tok)}, StartPos: tok.Pos}, true
	default:
		return Expr{}, false
	}
}

// parseIf parses an if/else/end block:
//
//	if <operand> ==|!= <operand>
//	    <statements>
//	else
//	    <statements>
//	end
func (p *Parser) parseIf() (Statement, error) {
	ifTok := p.advance()

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	opTok := p.cur()
	var op CondOp
	switch opTok.Type {
	case TokenEq:
		op = CondEq
	case TokenNe:
		op = CondNe
	default:
		return nil, &ParseError{Pos: opTok.Pos, Expected: "== or !=", Found: opTok.String()}
	}
	p.advance()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOL(); err != nil {
		return nil, err
	}

	thenBlock, terminator, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{Left: left, Op: op, Right: right, Then: thenBlock, StartPos: ifTok.Pos}

	if terminator == TokenElse {
		if err := p.expectEOL(); err != nil {
			return nil, err
		}
		elseBlock, term, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if term != TokenEnd {
			return nil, &ParseError{Pos: p.cur().Pos, Expected: "end", Found: p.cur().String()}
		}
		stmt.Else = elseBlock
	}
	if err := p.expectEOL(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseOperand parses one side of an if condition.
func (p *Parser) parseOperand() (Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenWord, TokenString, TokenNumber:
		p.advance()
		return Expr{Parts: []Part{{Kind: PartLiteral, Text: tok.Literal}}, StartPos: tok.Pos}, nil
	case TokenVariable:
		p.advance()
		return Expr{Parts: []Part{varPart(tok)}, StartPos: tok.Pos}, nil
	default:
		return Expr{}, &ParseError{Pos: tok.Pos, Expected: "operand", Found: tok.String()}
	}
}

// parseBlock parses statements until an else or end keyword, returning
// the terminator type. The terminator token is consumed.
func (p *Parser) parseBlock() ([]Statement, TokenType, error) {
	var stmts []Statement
	for {
		p.skipEOL()
		tok := p.cur()
		switch tok.Type {
		case TokenElse, TokenEnd:
			p.advance()
			return stmts, tok.Type, nil
		case TokenEOF:
			return nil, TokenEOF, &ParseError{Pos: tok.Pos, Expected: "end", Found: "EOF"}
		default:
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, TokenEOF, err
			}
			if stmt != nil {
				stmts = append(stmts, stmt)
			}
		}
	}
}
