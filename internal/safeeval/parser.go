package safeeval

import (
	"strings"

	"github.com/docalc/docalc/pkg/schema"
)

// maxParseDepth bounds expression nesting during parsing so pathological
// inputs cannot exhaust the stack.
const maxParseDepth = 64

type parseMode int

const (
	// modeFormula accepts only numeric expressions (no string literals).
	modeFormula parseMode = iota
	// modeFormat additionally accepts string literals and f-string templates.
	modeFormat
)

type parser struct {
	tokens []token
	pos    int
	mode   parseMode
	depth  int
}

// parse builds the whitelisted expression tree for src. Any syntax outside
// the grammar fails here, before anything is evaluated.
func parse(src string, mode parseMode) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, schema.NewError(schema.ErrCodeEvalSyntax, "empty expression")
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, mode: mode}
	node, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, schema.NewErrorf(schema.ErrCodeEvalSyntax,
			"unexpected trailing input at %q", p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) acceptIdent(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && t.text == word {
		p.next()
		return true
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxParseDepth {
		return schema.NewError(schema.ErrCodeEvalTooComplex, "expression too deeply nested")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// conditional := comparison ('if' comparison 'else' conditional)?
func (p *parser) conditional() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	body, err := p.comparison()
	if err != nil {
		return nil, err
	}
	if !p.acceptIdent("if") {
		return body, nil
	}
	test, err := p.comparison()
	if err != nil {
		return nil, err
	}
	if !p.acceptIdent("else") {
		return nil, schema.NewError(schema.ErrCodeEvalSyntax, "conditional missing 'else'")
	}
	orelse, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return &CondNode{Test: test, Body: body, Orelse: orelse}, nil
}

// comparison := arith (cmpop arith)*
func (p *parser) comparison() (Node, error) {
	left, err := p.arith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []Node
	for {
		op, ok := p.acceptOp("<", "<=", ">", ">=", "==", "!=")
		if !ok {
			break
		}
		right, err := p.arith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &CompareNode{Left: left, Ops: ops, Comparators: comparators}, nil
}

// arith := term (('+'|'-') term)*
func (p *parser) arith() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

// term := factor (('*'|'/'|'//'|'%') factor)*
func (p *parser) term() (Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "//", "%")
		if !ok {
			return left, nil
		}
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right}
	}
}

// factor := ('+'|'-') factor | power
func (p *parser) factor() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if op, ok := p.acceptOp("+", "-"); ok {
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: op, Operand: operand}, nil
	}
	return p.power()
}

// power := postfix ('**' factor)?  (right associative)
func (p *parser) power() (Node, error) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("**"); ok {
		exp, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

// postfix parses an atom and rejects attribute access and subscripting,
// which are outside the whitelist.
func (p *parser) postfix() (Node, error) {
	atom, err := p.atom()
	if err != nil {
		return nil, err
	}
	switch p.peek().text {
	case ".":
		return nil, schema.NewError(schema.ErrCodeEvalDisallowed, "attribute access is not allowed")
	case "[":
		return nil, schema.NewError(schema.ErrCodeEvalDisallowed, "subscripting is not allowed")
	}
	return atom, nil
}

func (p *parser) atom() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &NumberNode{Value: t.num, IsInt: t.isInt, Int: t.intVal}, nil

	case tokString:
		if p.mode != modeFormat {
			return nil, schema.NewError(schema.ErrCodeEvalDisallowed, "string literals are not allowed in formulas")
		}
		p.next()
		return &StringNode{Value: t.text}, nil

	case tokFString:
		if p.mode != modeFormat {
			return nil, schema.NewError(schema.ErrCodeEvalDisallowed, "string templates are not allowed in formulas")
		}
		p.next()
		return p.parseTemplate(t.text)

	case tokIdent:
		p.next()
		if _, ok := p.acceptOp("("); ok {
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			return &CallNode{Func: t.text, Args: args}, nil
		}
		return &NameNode{Name: t.text}, nil

	case tokOp:
		if t.text == "(" {
			p.next()
			inner, err := p.conditional()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptOp(")"); !ok {
				return nil, schema.NewError(schema.ErrCodeEvalSyntax, "missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeEvalSyntax, "unexpected token %q", t.text)
}

func (p *parser) callArgs() ([]Node, error) {
	var args []Node
	if _, ok := p.acceptOp(")"); ok {
		return args, nil
	}
	for {
		arg, err := p.conditional()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if _, ok := p.acceptOp(","); ok {
			continue
		}
		if _, ok := p.acceptOp(")"); ok {
			return args, nil
		}
		return nil, schema.NewError(schema.ErrCodeEvalSyntax, "malformed argument list")
	}
}

// parseTemplate parses raw f-string content into literal runs and
// formatted sub-expressions. "{{" and "}}" are escaped braces.
func (p *parser) parseTemplate(raw string) (Node, error) {
	tmpl := &TemplateNode{}
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			tmpl.Parts = append(tmpl.Parts, TemplatePart{Literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(raw); {
		c := raw[i]
		if c == '{' {
			if i+1 < len(raw) && raw[i+1] == '{' {
				literal.WriteByte('{')
				i += 2
				continue
			}
			end, err := findCloseBrace(raw, i+1)
			if err != nil {
				return nil, err
			}
			exprSrc, spec := splitFormatSpec(raw[i+1 : end])
			sub, err := parse(exprSrc, modeFormat)
			if err != nil {
				return nil, err
			}
			flush()
			tmpl.Parts = append(tmpl.Parts, TemplatePart{Expr: sub, Spec: spec})
			i = end + 1
			continue
		}
		if c == '}' {
			if i+1 < len(raw) && raw[i+1] == '}' {
				literal.WriteByte('}')
				i += 2
				continue
			}
			return nil, schema.NewError(schema.ErrCodeEvalSyntax, "single '}' in string template")
		}
		literal.WriteByte(c)
		i++
	}
	flush()
	return tmpl, nil
}

func findCloseBrace(s string, from int) (int, error) {
	depth := 0
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '}':
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, schema.NewError(schema.ErrCodeEvalSyntax, "unterminated replacement field in string template")
}

// splitFormatSpec splits "expr:spec" at the first top-level colon. The
// grammar has no other use for ':' so this is unambiguous.
func splitFormatSpec(s string) (expr, spec string) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ':':
			if depth == 0 {
				return s[:i], s[i+1:]
			}
		}
	}
	return s, ""
}
