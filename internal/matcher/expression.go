package matcher

import (
	"context"
	"fmt"
	"strings"
)

// BuildExpressionMatcher compiles a logical expression over named matchers.
// Supported operators: &&, ||, ! plus their textual counterparts (and, or, not)
// and parentheses. A bare name is the smallest valid expression.
func BuildExpressionMatcher(expr string, registry map[string]IFileMatcher) (IFileMatcher, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty matcher expression")
	}
	p := &exprParser{tokens: tokenizeExpression(expr), registry: registry}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("parse expression %q failed, err:%w", expr, err)
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("parse expression %q failed, unexpected token at %d", expr, p.pos)
	}
	return &expressionMatcher{raw: expr, root: root}, nil
}

type tokenType int

const (
	tokenIdentifier tokenType = iota
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	typ   tokenType
	value string
}

func tokenizeExpression(expr string) []token {
	normalised := strings.NewReplacer(
		"&&", " && ",
		"||", " || ",
		"(", " ( ",
		")", " ) ",
		"!", " ! ",
	).Replace(expr)
	fields := strings.Fields(normalised)
	tokens := make([]token, 0, len(fields))
	for _, part := range fields {
		switch strings.ToLower(part) {
		case "&&", "and":
			tokens = append(tokens, token{typ: tokenAnd})
		case "||", "or":
			tokens = append(tokens, token{typ: tokenOr})
		case "!", "not":
			tokens = append(tokens, token{typ: tokenNot})
		case "(":
			tokens = append(tokens, token{typ: tokenLParen})
		case ")":
			tokens = append(tokens, token{typ: tokenRParen})
		default:
			tokens = append(tokens, token{typ: tokenIdentifier, value: part})
		}
	}
	return tokens
}

// exprParser is a recursive descent parser; precedence is ! > && > ||.
type exprParser struct {
	tokens   []token
	pos      int
	registry map[string]IFileMatcher
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *exprParser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tk, ok := p.peek()
		if !ok || tk.typ != tokenOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: opOr, left: left, right: right}
	}
}

func (p *exprParser) parseAnd() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tk, ok := p.peek()
		if !ok || tk.typ != tokenAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: opAnd, left: left, right: right}
	}
}

func (p *exprParser) parseUnary() (exprNode, error) {
	tk, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch tk.typ {
	case tokenNot:
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.typ != tokenRParen {
			return nil, fmt.Errorf("mismatched parentheses in expression")
		}
		p.pos++
		return inner, nil
	case tokenIdentifier:
		mt, ok := p.registry[tk.value]
		if !ok {
			return nil, fmt.Errorf("matcher %s not found", tk.value)
		}
		return matcherNode{matcher: mt}, nil
	default:
		return nil, fmt.Errorf("unexpected operator at %d", p.pos-1)
	}
}

type exprNode interface {
	eval(ctx context.Context, filename string) (bool, error)
}

type expressionMatcher struct {
	raw  string
	root exprNode
}

func (e *expressionMatcher) Name() string {
	return e.raw
}

func (e *expressionMatcher) Type() string {
	return "expression"
}

func (e *expressionMatcher) Match(ctx context.Context, filename string) (bool, error) {
	return e.root.eval(ctx, filename)
}

type matcherNode struct {
	matcher IFileMatcher
}

func (m matcherNode) eval(ctx context.Context, filename string) (bool, error) {
	return m.matcher.Match(ctx, filename)
}

type notNode struct {
	child exprNode
}

func (n notNode) eval(ctx context.Context, filename string) (bool, error) {
	ok, err := n.child.eval(ctx, filename)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type binaryOp int

const (
	opAnd binaryOp = iota
	opOr
)

type binaryNode struct {
	op    binaryOp
	left  exprNode
	right exprNode
}

func (b binaryNode) eval(ctx context.Context, filename string) (bool, error) {
	leftOK, err := b.left.eval(ctx, filename)
	if err != nil {
		return false, err
	}
	switch b.op {
	case opAnd:
		if !leftOK {
			return false, nil
		}
	case opOr:
		if leftOK {
			return true, nil
		}
	default:
		return false, fmt.Errorf("unsupported binary operator")
	}
	return b.right.eval(ctx, filename)
}
