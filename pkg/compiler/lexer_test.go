package compiler

import (
	"reflect"
	"testing"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
		wantErr  bool
	}{
		{
			name:  "Empty",
			input: "",
			expected: []Token{
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Basic Tokens",
			input: "+ - * / & = == != < > ; , { } ( )",
			expected: []Token{
				{Type: PLUS, Lexeme: "+", Line: 1},
				{Type: MINUS, Lexeme: "-", Line: 1},
				{Type: STAR, Lexeme: "*", Line: 1},
				{Type: SLASH, Lexeme: "/", Line: 1},
				{Type: AND, Lexeme: "&", Line: 1},
				{Type: ASSIGN, Lexeme: "=", Line: 1},
				{Type: EQUALS, Lexeme: "==", Line: 1},
				{Type: NOT_EQ, Lexeme: "!=", Line: 1},
				{Type: LESS, Lexeme: "<", Line: 1},
				{Type: GREATER, Lexeme: ">", Line: 1},
				{Type: SEMICOLON, Lexeme: ";", Line: 1},
				{Type: COMMA, Lexeme: ",", Line: 1},
				{Type: LBRACE, Lexeme: "{", Line: 1},
				{Type: RBRACE, Lexeme: "}", Line: 1},
				{Type: LPAREN, Lexeme: "(", Line: 1},
				{Type: RPAREN, Lexeme: ")", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Keywords and Identifiers",
			input: "int if else while return variableName _under_score",
			expected: []Token{
				{Type: INT, Lexeme: "int", Line: 1},
				{Type: IF, Lexeme: "if", Line: 1},
				{Type: ELSE, Lexeme: "else", Line: 1},
				{Type: WHILE, Lexeme: "while", Line: 1},
				{Type: RETURN, Lexeme: "return", Line: 1},
				{Type: IDENTIFIER, Lexeme: "variableName", Line: 1},
				{Type: IDENTIFIER, Lexeme: "_under_score", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Integers",
			input: "123 0 0x1A 0Xff",
			expected: []Token{
				{Type: INTEGER, Lexeme: "123", Line: 1},
				{Type: INTEGER, Lexeme: "0", Line: 1},
				{Type: INTEGER, Lexeme: "0x1A", Line: 1},
				{Type: INTEGER, Lexeme: "0Xff", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Equality",
			input: "a == b",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: EQUALS, Lexeme: "==", Line: 1},
				{Type: IDENTIFIER, Lexeme: "b", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Comments",
			input: "x // comment\n y /* block */ z",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 2},
				{Type: IDENTIFIER, Lexeme: "z", Line: 2},
				{Type: EOF, Lexeme: "", Line: 2},
			},
		},
		{
			name:    "Unterminated Block Comment",
			input:   "/* start",
			wantErr: true,
		},
		{
			name:    "Unexpected Character",
			input:   "@",
			wantErr: true,
		},
		{
			name:  "Comparison Operators",
			input: "< > <= >= % !=",
			expected: []Token{
				{Type: LESS, Lexeme: "<", Line: 1},
				{Type: GREATER, Lexeme: ">", Line: 1},
				{Type: LESS_EQ, Lexeme: "<=", Line: 1},
				{Type: GREATER_EQ, Lexeme: ">=", Line: 1},
				{Type: PERCENT, Lexeme: "%", Line: 1},
				{Type: NOT_EQ, Lexeme: "!=", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:    "Bare Bang",
			input:   "!x",
			wantErr: true,
		},
		{
			name:  "Type Keywords",
			input: "char short int long unsigned signed void",
			expected: []Token{
				{Type: CHAR, Lexeme: "char", Line: 1},
				{Type: SHORT, Lexeme: "short", Line: 1},
				{Type: INT, Lexeme: "int", Line: 1},
				{Type: LONG, Lexeme: "long", Line: 1},
				{Type: UNSIGNED, Lexeme: "unsigned", Line: 1},
				{Type: SIGNED, Lexeme: "signed", Line: 1},
				{Type: VOID, Lexeme: "void", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Statement Keywords",
			input: "break continue printf",
			expected: []Token{
				{Type: BREAK, Lexeme: "break", Line: 1},
				{Type: CONTINUE, Lexeme: "continue", Line: 1},
				{Type: PRINTF, Lexeme: "printf", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "Character Literals",
			input: `'A' '\n' '\0' '\''`,
			expected: []Token{
				{Type: CHARACTER, Lexeme: "65", Line: 1},
				{Type: CHARACTER, Lexeme: "10", Line: 1},
				{Type: CHARACTER, Lexeme: "0", Line: 1},
				{Type: CHARACTER, Lexeme: "39", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:    "Empty Character Literal",
			input:   "''",
			wantErr: true,
		},
		{
			name:  "String Literal",
			input: "\"hello\"",
			expected: []Token{
				{Type: STRING, Lexeme: "hello", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:  "String with Escapes",
			input: "\"a\\nb\"",
			expected: []Token{
				{Type: STRING, Lexeme: "a\nb", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:    "Unterminated String",
			input:   "\"hello",
			wantErr: true,
		},
		{
			name:  "Brackets",
			input: "a[3]",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "a", Line: 1},
				{Type: LBRACKET, Lexeme: "[", Line: 1},
				{Type: INTEGER, Lexeme: "3", Line: 1},
				{Type: RBRACKET, Lexeme: "]", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
		{
			name:    "Hex No Digits",
			input:   "0x",
			wantErr: true,
		},
		{
			name:    "Integer Suffix",
			input:   "10u",
			wantErr: true,
		},
		{
			name:  "Adjacent Tokens",
			input: "x+y",
			expected: []Token{
				{Type: IDENTIFIER, Lexeme: "x", Line: 1},
				{Type: PLUS, Lexeme: "+", Line: 1},
				{Type: IDENTIFIER, Lexeme: "y", Line: 1},
				{Type: EOF, Lexeme: "", Line: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lex(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Lex() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if !reflect.DeepEqual(got, tt.expected) {
					t.Errorf("Lex() = %v, want %v", got, tt.expected)
				}
			}
		})
	}
}
