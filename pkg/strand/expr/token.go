package expr

import "fmt"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenBool
	tokenNull
	tokenDot
	tokenComma
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenEQ
	tokenNE
	tokenLT
	tokenLE
	tokenGT
	tokenGE
	tokenAnd
	tokenOr
	tokenNot
	tokenIn
	tokenContains
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

// tokenize converts an expression into a token stream.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(input) {
		c := input[i]

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		switch c {
		case '.':
			tokens = append(tokens, token{tokenDot, ".", i})
			i++
			continue
		case ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
			continue
		case '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
			continue
		case ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
			continue
		case '[':
			tokens = append(tokens, token{tokenLBracket, "[", i})
			i++
			continue
		case ']':
			tokens = append(tokens, token{tokenRBracket, "]", i})
			i++
			continue
		}

		if i+1 < len(input) {
			switch input[i : i+2] {
			case "==":
				tokens = append(tokens, token{tokenEQ, "==", i})
				i += 2
				continue
			case "!=":
				tokens = append(tokens, token{tokenNE, "!=", i})
				i += 2
				continue
			case "<=":
				tokens = append(tokens, token{tokenLE, "<=", i})
				i += 2
				continue
			case ">=":
				tokens = append(tokens, token{tokenGE, ">=", i})
				i += 2
				continue
			case "&&":
				tokens = append(tokens, token{tokenAnd, "&&", i})
				i += 2
				continue
			case "||":
				tokens = append(tokens, token{tokenOr, "||", i})
				i += 2
				continue
			}
		}

		switch c {
		case '<':
			tokens = append(tokens, token{tokenLT, "<", i})
			i++
			continue
		case '>':
			tokens = append(tokens, token{tokenGT, ">", i})
			i++
			continue
		case '!':
			tokens = append(tokens, token{tokenNot, "!", i})
			i++
			continue
		}

		if c == '\'' || c == '"' {
			quote := c
			i++
			start := i
			for i < len(input) && input[i] != quote {
				i++
			}
			if i >= len(input) {
				return nil, fmt.Errorf("unterminated string literal at position %d", start-1)
			}
			tokens = append(tokens, token{tokenString, input[start:i], start})
			i++
			continue
		}

		if c >= '0' && c <= '9' || (c == '-' && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9') {
			start := i
			if c == '-' {
				i++
			}
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokenNumber, input[start:i], start})
			continue
		}

		if isIdentStart(c) {
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			word := input[start:i]
			switch word {
			case "and":
				tokens = append(tokens, token{tokenAnd, word, start})
			case "or":
				tokens = append(tokens, token{tokenOr, word, start})
			case "not":
				tokens = append(tokens, token{tokenNot, word, start})
			case "in":
				tokens = append(tokens, token{tokenIn, word, start})
			case "contains":
				tokens = append(tokens, token{tokenContains, word, start})
			case "true", "false":
				tokens = append(tokens, token{tokenBool, word, start})
			case "null", "nil":
				tokens = append(tokens, token{tokenNull, word, start})
			default:
				tokens = append(tokens, token{tokenIdent, word, start})
			}
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
	}

	tokens = append(tokens, token{typ: tokenEOF, pos: len(input)})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
