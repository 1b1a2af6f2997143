// Tests the lexer by verifying that a sample program is tokenized into the
// exact expected sequence of (kind, value) pairs, in the style of the
// teacher's frontend/lexer_test.go (manually transcribed expected token
// table, compared token by token in source order).
package lexer

import (
	"testing"

	"github.com/hhramberg/tsnc/internal/token"
)

type item struct {
	kind token.Kind
	val  string
}

func collect(t *testing.T, src string) []item {
	t.Helper()
	lx := New(src)
	go lx.Run()
	var out []item
	for tok := range lx.Tokens {
		out = append(out, item{kind: tok.Kind, val: tok.Val})
		if tok.Kind == token.EOF || tok.Kind == token.ERROR {
			break
		}
	}
	return out
}

func TestLexerBasicDeclaration(t *testing.T) {
	src := `const x: number = 1 + 2;`
	exp := []item{
		{token.CONST, "const"},
		{token.IDENT, "x"},
		{token.COLON, ":"},
		{token.IDENT, "number"},
		{token.ASSIGN, "="},
		{token.FLOAT_LIT, "1"},
		{token.PLUS, "+"},
		{token.FLOAT_LIT, "2"},
		{token.SEMI, ";"},
		{token.EOF, ""},
	}
	got := collect(t, src)
	if len(got) != len(exp) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(exp), got)
	}
	for i1, e := range exp {
		if got[i1].kind != e.kind || got[i1].val != e.val {
			t.Errorf("token %d = %v, want %v", i1, got[i1], e)
		}
	}
}

func TestLexerOperators(t *testing.T) {
	src := `a === b !== c <= d >= e += f -= g *= h /= i`
	exp := []token.Kind{
		token.IDENT, token.EQ, token.IDENT, token.NE, token.IDENT,
		token.LE, token.IDENT, token.GE, token.IDENT,
		token.PLUS_EQ, token.IDENT, token.MINUS_EQ, token.IDENT,
		token.STAR_EQ, token.IDENT, token.SLASH_EQ, token.IDENT,
		token.EOF,
	}
	got := collect(t, src)
	if len(got) != len(exp) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(exp), got)
	}
	for i1, k := range exp {
		if got[i1].kind != k {
			t.Errorf("token %d kind = %s, want %s", i1, got[i1].kind, k)
		}
	}
}

func TestLexerStringLiteral(t *testing.T) {
	got := collect(t, `"hello, world"`)
	if len(got) != 2 {
		t.Fatalf("token count = %d, want 2 (%v)", len(got), got)
	}
	if got[0].kind != token.STRING_LIT || got[0].val != "hello, world" {
		t.Errorf("got %v, want STRING_LIT %q", got[0], "hello, world")
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	got := collect(t, `"unterminated`)
	if len(got) == 0 || got[len(got)-1].kind != token.ERROR {
		t.Fatalf("expected a trailing ERROR token, got %v", got)
	}
}

func TestLexerLineComment(t *testing.T) {
	src := "let a = 1; // trailing comment\nlet b = 2;"
	got := collect(t, src)
	for _, it := range got {
		if it.kind == token.ERROR {
			t.Fatalf("unexpected error token in %v", got)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	src := "if else while do break continue function return import export from"
	exp := []token.Kind{
		token.IF, token.ELSE, token.WHILE, token.DO, token.BREAK,
		token.CONTINUE, token.FUNCTION, token.RETURN, token.IMPORT,
		token.EXPORT, token.FROM, token.EOF,
	}
	got := collect(t, src)
	if len(got) != len(exp) {
		t.Fatalf("token count = %d, want %d (%v)", len(got), len(exp), got)
	}
	for i1, k := range exp {
		if got[i1].kind != k {
			t.Errorf("token %d kind = %s, want %s", i1, got[i1].kind, k)
		}
	}
}
