// Package compiler provides a restricted-C preprocessor, lexer, parser,
// type checker and code generator that targets the jcc stack machine
// instruction set of package code.
//
// Pipeline: C source → Preprocess → Lex → Parse → Generate → code.Program
package compiler
