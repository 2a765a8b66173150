package compiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds an AST.
//
// Grammar:
//
//	program      = functionDef* EOF
//	functionDef  = type IDENTIFIER "(" params ")" block
//	params       = "void" | (type IDENTIFIER ("," type IDENTIFIER)*)?
//	type         = ("unsigned" | "signed")? ("char" | "short" | "int" | "long" | "void")? "*"*
//	block        = "{" statement* "}"
//	statement    = block | if | while | return | "break" ";" | "continue" ";" | printf
//	             | varDecl | assignment | exprStmt
//	varDecl      = type IDENTIFIER ("[" INTEGER "]")? ("=" expression)? ";"
//	assignment   = unary "=" expression ";"
//	printf       = "printf" "(" expression ("," expression)* ")" ";"
//	expression   = equality
//	equality     = relational (("==" | "!=") relational)*
//	relational   = additive (("<" | ">" | "<=" | ">=") additive)*
//	additive     = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/" | "%") unary)*
//	unary        = ("&" | "*" | "-") unary | postfix
//	postfix      = primary ("[" expression "]")* | IDENTIFIER "(" args ")"
//	primary      = INTEGER | CHARACTER | STRING | IDENTIFIER | "(" expression ")"
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{tokens: tokens, sourceLines: strings.Split(rawSource, "\n")}
}

// fmtError wraps an error message with the source line where the token appears.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	lineIdx := tok.Line - 1 // Lines are 1-based

	snippet := "<source unavailable>"
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}

	return fmt.Errorf("line %d: %s\n  |> %s", tok.Line, msg, snippet)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

//  Types

// parseType reads a type specifier followed by any number of '*'.
// "unsigned" and "signed" alone mean int; "short int", "long int" and
// "long long" are accepted as spellings of short and long.
func (p *Parser) parseType() (*CType, error) {
	start := p.peek()
	unsigned, signed := false, false
	switch start.Type {
	case UNSIGNED:
		p.advance()
		unsigned = true
	case SIGNED:
		p.advance()
		signed = true
	}

	var base *CType
	switch p.peek().Type {
	case CHAR:
		p.advance()
		base = TyChar
	case SHORT:
		p.advance()
		base = TyShort
		p.skip(INT)
	case INT:
		p.advance()
		base = TyInt
	case LONG:
		p.advance()
		base = TyLong
		p.skip(LONG)
		p.skip(INT)
	case VOID:
		if unsigned || signed {
			return nil, p.fmtError(start, "%s void is not a type", start.Lexeme)
		}
		p.advance()
		base = TyVoid
	default:
		if !unsigned && !signed {
			tok := p.peek()
			return nil, p.fmtError(tok, "expected type, got %s (%q)", tok.Type, tok.Lexeme)
		}
		base = TyInt
	}
	if unsigned {
		base = unsignedOf(base)
	}

	for p.peek().Type == STAR {
		p.advance()
		base = PointerTo(base)
	}
	return base, nil
}

func (p *Parser) skip(tt TokenType) {
	if p.peek().Type == tt {
		p.advance()
	}
}

func unsignedOf(t *CType) *CType {
	switch t.Kind {
	case KindChar:
		return TyUChar
	case KindShort:
		return TyUShort
	case KindLong:
		return TyULong
	}
	return TyUInt
}

//  Top level

// parseFunctionDef parses  type name(params) { body }
func (p *Parser) parseFunctionDef() (*FunctionDecl, error) {
	retType, err := p.parseType()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != LPAREN {
		tok := p.peek()
		return nil, p.fmtError(tok, "only function definitions are allowed at top level, got %s after %q", tok.Type, nameTok.Lexeme)
	}
	p.advance()

	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &FunctionDecl{ReturnType: retType, Name: nameTok.Lexeme, Params: params, Body: body}, nil
}

// parseParams parses the parameter list up to and including ')'.
func (p *Parser) parseParams() ([]Param, error) {
	var params []Param
	if p.peek().Type == VOID && p.peekAt(1).Type == RPAREN {
		p.advance()
	} else if p.peek().Type != RPAREN {
		for {
			typ, err := p.parseType()
			if err != nil {
				return nil, err
			}
			nameTok, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			params = append(params, Param{Type: typ, Name: nameTok.Lexeme})

			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

//  Statements

// parseStatement dispatches to the correct sub-parser based on the leading token.
func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {

	case LBRACE:
		p.advance()
		return p.parseBlock()

	case IF:
		p.advance()
		return p.parseIf()

	case WHILE:
		p.advance()
		return p.parseWhile()

	case RETURN:
		p.advance()
		return p.parseReturn()

	case BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BreakStmt{}, nil

	case CONTINUE:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ContinueStmt{}, nil

	case PRINTF:
		p.advance()
		return p.parsePrintf()

	case EOF:
		return nil, p.fmtError(tok, "unexpected end of input")
	}

	if tok.Type.isTypeKeyword() {
		return p.parseVarDecl()
	}

	// Expression statement or assignment
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == ASSIGN {
		return p.parseAssignment(expr)
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{Expr: expr}, nil
}

// parseBlock parses { stmt1; stmt2; ... }
// The leading LBRACE token has already been consumed.
func (p *Parser) parseBlock() (*BlockStmt, error) {
	stmts := []Stmt{}
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return &BlockStmt{Stmts: stmts}, nil
}

// parseVarDecl parses  type name[N] = init;
func (p *Parser) parseVarDecl() (Stmt, error) {
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	if p.peek().Type == LBRACKET {
		p.advance()
		sizeTok, err := p.expect(INTEGER)
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseInt(sizeTok.Lexeme, 0, 32)
		if err != nil {
			return nil, p.fmtError(sizeTok, "bad array size %q", sizeTok.Lexeme)
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		typ = ArrayOf(typ, int(size))
	}

	decl := &VarDecl{Type: typ, Name: nameTok.Lexeme}
	if p.peek().Type != ASSIGN {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return decl, nil
	}

	p.advance()
	init, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &VarInit{Decl: decl, Init: init}, nil
}

// parseAssignment parses  lvalue = expr ;
// The left-hand side expression (lvalue) is passed in.
func (p *Parser) parseAssignment(left Expr) (Stmt, error) {
	p.advance() // =
	val, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &Assignment{Left: left, Value: val}, nil
}

// parseReturn parses  return [expr] ;
// Whether a value is required depends on the function's type and is
// checked during code generation.
func (p *Parser) parseReturn() (Stmt, error) {
	if p.peek().Type == SEMICOLON {
		p.advance()
		return &ReturnStmt{}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ReturnStmt{Expr: expr}, nil
}

// parseIf parses if ( cond ) body [ else elseBody ]
// The leading IF token has already been consumed.
func (p *Parser) parseIf() (Stmt, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	var elseBody Stmt
	if p.peek().Type == ELSE {
		p.advance()
		elseBody, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}

	return &IfStmt{Condition: cond, Body: body, ElseBody: elseBody}, nil
}

// parseWhile parses while ( cond ) body
// The leading WHILE token has already been consumed.
func (p *Parser) parseWhile() (Stmt, error) {
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Condition: cond, Body: body}, nil
}

func (p *Parser) parseCondition() (Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return cond, nil
}

// parsePrintf parses ( format, args... ) ;
// The leading PRINTF token has already been consumed.
func (p *Parser) parsePrintf() (Stmt, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	args, err := p.parseCallArgs()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: printf needs a format argument", ErrArity)
	}
	return &PrintfStmt{Format: args[0], Args: args[1:]}, nil
}

//  Expressions

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseEquality()
}

// parseBinary parses  next (op next)*  for the operators in ops.
func (p *Parser) parseBinary(next func() (Expr, error), ops map[TokenType]BinaryOp) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := ops[p.peek().Type]
		if !ok {
			return expr, nil
		}
		p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: op, Left: expr, Right: right}
	}
}

var (
	equalityOps       = map[TokenType]BinaryOp{EQUALS: OpEq, NOT_EQ: OpNe}
	relationalOps     = map[TokenType]BinaryOp{LESS: OpLt, GREATER: OpGt, LESS_EQ: OpLe, GREATER_EQ: OpGe}
	additiveOps       = map[TokenType]BinaryOp{PLUS: OpAdd, MINUS: OpSub}
	multiplicativeOps = map[TokenType]BinaryOp{STAR: OpMul, SLASH: OpDiv, PERCENT: OpMod}
)

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinary(p.parseRelational, equalityOps)
}

// parseRelational handles < > <= >=
func (p *Parser) parseRelational() (Expr, error) {
	return p.parseBinary(p.parseAdditive, relationalOps)
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinary(p.parseMultiplicative, additiveOps)
}

// parseMultiplicative handles * / %
func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinary(p.parseUnary, multiplicativeOps)
}

// parseUnary handles prefix &, * and unary minus, which becomes 0 - x.
func (p *Parser) parseUnary() (Expr, error) {
	switch p.peek().Type {
	case AND:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &AddrExpr{Operand: operand}, nil
	case STAR:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &DerefExpr{Operand: operand}, nil
	case MINUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: OpSub, Left: &IntLiteral{Value: 0, Type: TyInt}, Right: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles function calls and a[i], which is sugar for *(a + i).
func (p *Parser) parsePostfix() (Expr, error) {
	if p.peek().Type == IDENTIFIER && p.peekAt(1).Type == LPAREN {
		name := p.advance().Lexeme
		p.advance() // (
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		return &FunctionCall{Name: name, Args: args}, nil
	}

	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == LBRACKET {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, err
		}
		expr = &DerefExpr{Operand: &BinaryExpr{Op: OpAdd, Left: expr, Right: index}}
	}
	if tok := p.peek(); tok.Type == LPAREN {
		return nil, p.fmtError(tok, "expected function name before '('")
	}
	return expr, nil
}

// parseCallArgs parses  expr, expr, ... )
func (p *Parser) parseCallArgs() ([]Expr, error) {
	var args []Expr
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}

	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

// parsePrimary handles literals, variables, and parenthesised expressions.
func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		return p.intLiteral(tok)

	case CHARACTER:
		p.advance()
		val, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, p.fmtError(tok, "bad character literal %q", tok.Lexeme)
		}
		return &IntLiteral{Value: val, Type: TyChar}, nil

	case STRING:
		p.advance()
		return &StringLiteral{Value: tok.Lexeme}, nil

	case IDENTIFIER:
		p.advance()
		return &VarRef{Name: tok.Lexeme}, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
	}
}

// intLiteral types a literal as int when it fits, otherwise long, otherwise
// unsigned long.
func (p *Parser) intLiteral(tok Token) (Expr, error) {
	if v, err := strconv.ParseInt(tok.Lexeme, 0, 64); err == nil {
		if v <= math.MaxInt32 {
			return &IntLiteral{Value: v, Type: TyInt}, nil
		}
		return &IntLiteral{Value: v, Type: TyLong}, nil
	}
	u, err := strconv.ParseUint(tok.Lexeme, 0, 64)
	if err != nil {
		return nil, p.fmtError(tok, "integer %q out of 64-bit range", tok.Lexeme)
	}
	return &IntLiteral{Value: int64(u), Type: TyULong}, nil
}

// Parse parses a whole translation unit. Only function definitions are
// allowed at the top level.
func Parse(tokens []Token, rawSource string) ([]*FunctionDecl, error) {
	p := NewParser(tokens, rawSource)
	var funcs []*FunctionDecl
	for p.peek().Type != EOF {
		if tok := p.peek(); !tok.Type.isTypeKeyword() {
			return nil, p.fmtError(tok, "executable statement %q found outside of function body", tok.Lexeme)
		}
		f, err := p.parseFunctionDef()
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}
