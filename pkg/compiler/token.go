package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	INTEGER    // decimal or hex integer literal
	CHARACTER  // character literal 'c', lexeme is its decimal code
	STRING     // string literal "..."

	// Keywords
	INT      // "int"
	CHAR     // "char"
	SHORT    // "short"
	LONG     // "long"
	UNSIGNED // "unsigned"
	SIGNED   // "signed"
	VOID     // "void"
	IF       // "if"
	ELSE     // "else"
	WHILE    // "while"
	RETURN   // "return"
	BREAK    // "break"
	CONTINUE // "continue"
	PRINTF   // "printf"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,

	// Arithmetic operators
	PLUS    // +
	MINUS   // -
	STAR    // * (multiplication, or unary dereference)
	SLASH   // /
	PERCENT // %
	AND     // & (unary address-of)

	// Assignment / comparison  (order matters: ASSIGN before EQUALS)
	ASSIGN // =

	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	INTEGER:    "INTEGER",
	CHARACTER:  "CHARACTER",
	STRING:     "STRING",
	INT:        "INT",
	CHAR:       "CHAR",
	SHORT:      "SHORT",
	LONG:       "LONG",
	UNSIGNED:   "UNSIGNED",
	SIGNED:     "SIGNED",
	VOID:       "VOID",
	IF:         "IF",
	ELSE:       "ELSE",
	WHILE:      "WHILE",
	RETURN:     "RETURN",
	BREAK:      "BREAK",
	CONTINUE:   "CONTINUE",
	PRINTF:     "PRINTF",
	LBRACE:     "LBRACE",
	RBRACE:     "RBRACE",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
	SEMICOLON:  "SEMICOLON",
	COMMA:      "COMMA",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	PERCENT:    "PERCENT",
	AND:        "AND",
	ASSIGN:     "ASSIGN",
	EQUALS:     "EQUALS",
	NOT_EQ:     "NOT_EQ",
	LESS:       "LESS",
	GREATER:    "GREATER",
	LESS_EQ:    "LESS_EQ",
	GREATER_EQ: "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// isTypeKeyword reports whether tt can start a type specifier.
func (tt TokenType) isTypeKeyword() bool {
	switch tt {
	case INT, CHAR, SHORT, LONG, UNSIGNED, SIGNED, VOID:
		return true
	}
	return false
}

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
