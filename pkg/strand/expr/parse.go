package expr

import (
	"fmt"
	"strconv"
)

// Expr is a parsed condition, reusable across evaluations and safe for
// concurrent use.
type Expr struct {
	source string
	root   boolNode
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.source }

// Parse checks the expression against the grammar and returns a reusable
// Expr. Parsing never touches state; the linter uses it for pure syntax
// validation.
func Parse(input string) (*Expr, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", input, err)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", input, err)
	}
	if p.current().typ != tokenEOF {
		return nil, fmt.Errorf("parse %q: unexpected %q at position %d",
			input, p.current().value, p.current().pos)
	}

	return &Expr{source: input, root: root}, nil
}

// boolNode is an AST node producing a boolean.
type boolNode interface {
	eval(state map[string]any) (bool, error)
}

// valueNode is an AST node producing an arbitrary value.
type valueNode interface {
	resolve(state map[string]any) (any, error)
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() { p.pos++ }

func (p *parser) expect(typ tokenType, what string) error {
	if p.current().typ != typ {
		return fmt.Errorf("expected %s, got %q at position %d", what, p.current().value, p.current().pos)
	}
	p.advance()
	return nil
}

func (p *parser) parseOr() (boolNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().typ == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (boolNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current().typ == tokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (boolNode, error) {
	if p.current().typ == tokenNot {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (boolNode, error) {
	// Parenthesized boolean sub-expression: look ahead to distinguish
	// "(a or b)" from a grouped value; the grammar only groups booleans.
	if p.current().typ == tokenLParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	tok := p.current()
	switch tok.typ {
	case tokenEQ, tokenNE, tokenLT, tokenLE, tokenGT, tokenGE, tokenIn, tokenContains:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &cmpNode{op: tok.typ, opText: tok.value, left: left, right: right}, nil
	}

	// Bare value: truthiness test.
	return &truthyNode{value: left}, nil
}

func (p *parser) parsePrimary() (valueNode, error) {
	tok := p.current()

	switch tok.typ {
	case tokenBool:
		p.advance()
		return &literalNode{value: tok.value == "true"}, nil

	case tokenNull:
		p.advance()
		return &literalNode{value: nil}, nil

	case tokenNumber:
		p.advance()
		if i, err := strconv.ParseInt(tok.value, 10, 64); err == nil {
			return &literalNode{value: i}, nil
		}
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", tok.value, tok.pos)
		}
		return &literalNode{value: f}, nil

	case tokenString:
		p.advance()
		return &literalNode{value: tok.value}, nil

	case tokenLBracket:
		return p.parseListLiteral()

	case tokenIdent:
		return p.parsePath()

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", tok.value, tok.pos)
	}
}

// parseListLiteral parses ["a", "b", 3] for membership tests.
func (p *parser) parseListLiteral() (valueNode, error) {
	p.advance() // consume '['
	var elems []valueNode
	if p.current().typ != tokenRBracket {
		for {
			elem, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
			if p.current().typ != tokenComma {
				break
			}
			p.advance()
		}
	}
	if err := p.expect(tokenRBracket, "]"); err != nil {
		return nil, err
	}
	return &listNode{elems: elems}, nil
}

// parsePath parses dotted field access with optional list indexing:
// review.score, items[2], items[0].name.
func (p *parser) parsePath() (valueNode, error) {
	path := &pathNode{}
	path.segments = append(path.segments, pathSegment{field: p.current().value})
	p.advance()

	for {
		switch p.current().typ {
		case tokenDot:
			p.advance()
			if p.current().typ != tokenIdent {
				return nil, fmt.Errorf("expected identifier after '.', got %q at position %d",
					p.current().value, p.current().pos)
			}
			path.segments = append(path.segments, pathSegment{field: p.current().value})
			p.advance()
		case tokenLBracket:
			p.advance()
			tok := p.current()
			if tok.typ != tokenNumber {
				return nil, fmt.Errorf("list index must be a number literal, got %q at position %d",
					tok.value, tok.pos)
			}
			idx, err := strconv.Atoi(tok.value)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid list index %q at position %d", tok.value, tok.pos)
			}
			p.advance()
			if err := p.expect(tokenRBracket, "]"); err != nil {
				return nil, err
			}
			path.segments = append(path.segments, pathSegment{index: idx, isIndex: true})
		default:
			return path, nil
		}
	}
}
