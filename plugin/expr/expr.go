/*
	Package expr parses small arithmetic expressions over named arrays, such as
	"(tomo - dark) / (flat - dark)", and evaluates them element-wise.

	Expressions are parsed once.  Evaluation walks the tree for each element and
	never executes generated code.
*/
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/janelia-flyem/tomoflow/ndarray"
)

// Node is a parsed expression.
type Node interface {
	String() string
	value(ops [][]float32, i int) float32
}

// Num is a constant.
type Num float32

// Ref is a named operand.  Slot is its position in Expr.Refs.
type Ref struct {
	Name string
	Slot int
}

// Binary applies Op ('+', '-', '*' or '/') to two operands.
type Binary struct {
	Op   rune
	L, R Node
}

// Neg negates its operand.
type Neg struct {
	X Node
}

func (n Num) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 32) }
func (r Ref) String() string { return r.Name }
func (b Binary) String() string {
	return fmt.Sprintf("(%s %c %s)", b.L, b.Op, b.R)
}
func (n Neg) String() string { return fmt.Sprintf("-%s", n.X) }

func (n Num) value([][]float32, int) float32 { return float32(n) }
func (r Ref) value(ops [][]float32, i int) float32 { return ops[r.Slot][i] }
func (n Neg) value(ops [][]float32, i int) float32 { return -n.X.value(ops, i) }

func (b Binary) value(ops [][]float32, i int) float32 {
	l, r := b.L.value(ops, i), b.R.value(ops, i)
	switch b.Op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		return l / r
	}
}

// Expr is a parsed expression and the operand names it references, in order
// of first appearance.
type Expr struct {
	Root Node
	Refs []string
	src  string
}

func (e *Expr) String() string { return e.src }

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Expr   string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bad expression %q at offset %d: %s", e.Expr, e.Offset, e.Msg)
}

type parser struct {
	s    scanner.Scanner
	tok  rune
	src  string
	err  *SyntaxError
	refs map[string]int
	expr *Expr
}

// Parse parses an expression built from numbers, operand names, the binary
// operators + - * / (with the usual precedence), unary minus and parentheses.
func Parse(src string) (*Expr, error) {
	p := &parser{src: src, refs: make(map[string]int), expr: &Expr{src: src}}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts
	p.s.Error = func(s *scanner.Scanner, msg string) {
		p.fail(msg)
	}
	p.next()
	root := p.sum()
	if p.err == nil && p.tok != scanner.EOF {
		p.fail(fmt.Sprintf("unexpected %q", p.s.TokenText()))
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(p.expr.Refs) == 0 {
		return nil, &SyntaxError{Expr: src, Msg: "expression references no operands"}
	}
	p.expr.Root = root
	return p.expr, nil
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) fail(msg string) {
	if p.err == nil {
		p.err = &SyntaxError{Expr: p.src, Offset: p.s.Position.Offset, Msg: msg}
	}
}

// sum = product { ("+" | "-") product }
func (p *parser) sum() Node {
	n := p.product()
	for p.err == nil && (p.tok == '+' || p.tok == '-') {
		op := p.tok
		p.next()
		n = Binary{Op: op, L: n, R: p.product()}
	}
	return n
}

// product = unary { ("*" | "/") unary }
func (p *parser) product() Node {
	n := p.unary()
	for p.err == nil && (p.tok == '*' || p.tok == '/') {
		op := p.tok
		p.next()
		n = Binary{Op: op, L: n, R: p.unary()}
	}
	return n
}

// unary = ("-" | "+") unary | primary
func (p *parser) unary() Node {
	switch p.tok {
	case '-':
		p.next()
		return Neg{X: p.unary()}
	case '+':
		p.next()
		return p.unary()
	}
	return p.primary()
}

func (p *parser) primary() Node {
	switch p.tok {
	case scanner.Int, scanner.Float:
		f, err := strconv.ParseFloat(p.s.TokenText(), 32)
		if err != nil {
			p.fail(err.Error())
			return Num(0)
		}
		p.next()
		return Num(f)
	case scanner.Ident:
		name := p.s.TokenText()
		slot, found := p.refs[name]
		if !found {
			slot = len(p.expr.Refs)
			p.refs[name] = slot
			p.expr.Refs = append(p.expr.Refs, name)
		}
		p.next()
		return Ref{Name: name, Slot: slot}
	case '(':
		p.next()
		n := p.sum()
		if p.err == nil && p.tok != ')' {
			p.fail("missing )")
		}
		p.next()
		return n
	case scanner.EOF:
		p.fail("unexpected end of expression")
	default:
		p.fail(fmt.Sprintf("unexpected %q", p.s.TokenText()))
	}
	return Num(0)
}

// Eval evaluates the expression for each element of the operands, which must
// all have the same shape.  The result has that shape.
func (e *Expr) Eval(operands map[string]*ndarray.Array) (*ndarray.Array, error) {
	ops := make([][]float32, len(e.Refs))
	var shape []int
	for slot, name := range e.Refs {
		a, found := operands[name]
		if !found || a == nil {
			return nil, fmt.Errorf("expression %q: no operand %q", e.src, name)
		}
		if shape == nil {
			shape = a.Shape()
		} else if !sameShape(shape, a.Shape()) {
			return nil, fmt.Errorf("expression %q: operand %q has shape %v, expected %v", e.src, name, a.Shape(), shape)
		}
		ops[slot] = a.Data()
	}
	out := ndarray.New(shape...)
	data := out.Data()
	for i := range data {
		data[i] = e.Root.value(ops, i)
	}
	return out, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
