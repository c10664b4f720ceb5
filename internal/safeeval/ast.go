// Package safeeval parses and evaluates the restricted expression grammar
// used by formula and format-rule strings in table configurations. The
// grammar is a closed whitelist: numeric literals, variable references,
// binary arithmetic (+ - * / ** // %), unary +/-, a fixed set of function
// calls, comparisons, conditional expressions, and (in format mode) string
// templates with constrained format specifiers. Everything else is rejected
// with a structured error before any evaluation takes place.
package safeeval

// Node is a node of the whitelisted expression tree. The set of
// implementations below is the complete grammar: the parser can produce
// nothing else, which is what makes evaluation safe.
type Node interface {
	node()
}

// NumberNode is a numeric literal. Integers keep their integral identity so
// formatting and floor division behave like the source configuration
// expects.
type NumberNode struct {
	Value float64
	IsInt bool
	Int   int64
}

// StringNode is a plain string literal (format mode only).
type StringNode struct {
	Value string
}

// NameNode is a variable reference.
type NameNode struct {
	Name string
}

// UnaryNode is unary plus or minus.
type UnaryNode struct {
	Op      string
	Operand Node
}

// BinaryNode is a binary arithmetic operation: + - * / ** // %.
type BinaryNode struct {
	Op    string
	Left  Node
	Right Node
}

// CompareNode is a (possibly chained) comparison: a < b <= c.
type CompareNode struct {
	Left        Node
	Ops         []string
	Comparators []Node
}

// CallNode is a call to one of the allowed functions.
type CallNode struct {
	Func string
	Args []Node
}

// CondNode is a conditional expression: body if test else orelse.
type CondNode struct {
	Test   Node
	Body   Node
	Orelse Node
}

// TemplateNode is a string template (an f-string in the source syntax):
// literal runs interleaved with formatted sub-expressions.
type TemplateNode struct {
	Parts []TemplatePart
}

// TemplatePart is one segment of a template: either a literal string
// (Expr nil) or a sub-expression with an optional format specifier.
type TemplatePart struct {
	Literal string
	Expr    Node
	Spec    string
}

func (*NumberNode) node()   {}
func (*StringNode) node()   {}
func (*NameNode) node()     {}
func (*UnaryNode) node()    {}
func (*BinaryNode) node()   {}
func (*CompareNode) node()  {}
func (*CallNode) node()     {}
func (*CondNode) node()     {}
func (*TemplateNode) node() {}
