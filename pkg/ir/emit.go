package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/N3rdL0rd/crashlink/pkg/hlbc"
)

// Emit renders fn as indented pseudo-code in a Haxe-flavored dialect —
// the language HashLink bytecode is almost always compiled from, and
// the dialect its own field/method names already read naturally in.
func Emit(fn *Func) string {
	e := &emitter{}
	e.printf("function f@%d(%s) {\n", fn.FIndex, e.paramList(fn))
	e.indent++
	e.block(fn.Body)
	e.indent--
	e.printf("}\n")
	return e.b.String()
}

type emitter struct {
	b      strings.Builder
	indent int
}

func (e *emitter) paramList(fn *Func) string {
	var names []string
	for i := int32(0); i < fn.NArgs; i++ {
		names = append(names, fmt.Sprintf("arg%d", i))
	}
	return strings.Join(names, ", ")
}

func (e *emitter) printf(format string, args ...any) {
	fmt.Fprintf(&e.b, "%s", strings.Repeat("    ", e.indent))
	fmt.Fprintf(&e.b, format, args...)
}

func (e *emitter) block(b Block) {
	for _, s := range b.Stmts {
		e.stmt(s)
	}
}

func (e *emitter) stmt(s Stmt) {
	switch n := s.(type) {
	case *Assign:
		e.printf("%s = %s;\n", e.expr(n.Dst), e.expr(n.Src))
	case *ExprStmt:
		e.printf("%s;\n", e.expr(n.Expr))
	case *Return:
		if n.Value == nil {
			e.printf("return;\n")
		} else {
			e.printf("return %s;\n", e.expr(n.Value))
		}
	case *Throw:
		verb := "throw"
		if n.Rethrow {
			verb = "rethrow"
		}
		e.printf("%s %s;\n", verb, e.expr(n.Value))
	case *Conditional:
		e.printf("if (%s) {\n", e.expr(n.Cond))
		e.indent++
		e.block(n.Then)
		e.indent--
		if len(n.Else.Stmts) > 0 {
			e.printf("} else {\n")
			e.indent++
			e.block(n.Else)
			e.indent--
		}
		e.printf("}\n")
	case *Loop:
		switch n.Form {
		case LoopPreTested:
			e.printf("while (%s) {\n", e.expr(n.Cond))
		case LoopPostTested:
			e.printf("do {\n")
		default:
			e.printf("while (true) {\n")
		}
		e.indent++
		e.block(n.Body)
		e.indent--
		if n.Form == LoopPostTested {
			e.printf("} while (%s);\n", e.expr(n.Cond))
		} else {
			e.printf("}\n")
		}
	case *Break:
		e.printf("break;\n")
	case *Continue:
		e.printf("continue;\n")
	case *Switch:
		e.printf("switch (%s) {\n", e.expr(n.Scrutinee))
		e.indent++
		for _, c := range n.Cases {
			e.printf("case %d:\n", c.Value)
			e.indent++
			e.block(c.Body)
			e.indent--
		}
		if len(n.Default.Stmts) > 0 {
			e.printf("default:\n")
			e.indent++
			e.block(n.Default)
			e.indent--
		}
		e.indent--
		e.printf("}\n")
	case *Try:
		e.printf("try {\n")
		e.indent++
		e.block(n.Body)
		e.indent--
		for _, c := range n.Catches {
			e.printf("} catch (e%d) {\n", c.Reg)
			e.indent++
			e.block(c.Body)
			e.indent--
		}
		e.printf("}\n")
	case *PrimitiveJump:
		e.printf("goto L%d;\n", n.TargetPC)
	case *UntranslatedOpcode:
		e.printf("/* %d: %s */\n", n.PC, opcodeSummary(n.Op))
	default:
		e.printf("/* unknown statement */\n")
	}
}

func opcodeSummary(op hlbc.Opcode) string {
	var parts []string
	parts = append(parts, op.Name())
	for _, f := range op.Fields {
		if len(f.List) > 0 {
			vals := make([]string, len(f.List))
			for i, v := range f.List {
				vals[i] = strconv.FormatInt(int64(v.Value), 10)
			}
			parts = append(parts, fmt.Sprintf("%s=[%s]", f.Name, strings.Join(vals, ",")))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%d", f.Name, f.Scalar.Value))
		}
	}
	return strings.Join(parts, " ")
}

// expr renders e, parenthesizing operands by exprParen's rule. That
// rule does not consult operator precedence, so some parentheses it
// adds are redundant (a + (b * c)).
func (e *emitter) expr(x Expr) string {
	switch n := x.(type) {
	case nil:
		return "null"
	case *Const:
		return constLiteral(n)
	case *Local:
		if n.Name != "" {
			return n.Name
		}
		return fmt.Sprintf("r%d", n.Reg)
	case *Arg:
		return fmt.Sprintf("arg%d", n.Index)
	case *Field:
		obj := "this"
		if n.Obj != nil {
			obj = e.expr(n.Obj)
		}
		name := n.FieldName
		if name == "" {
			name = fmt.Sprintf("f%d", n.FieldIdx)
		}
		return fmt.Sprintf("%s.%s", obj, name)
	case *Arithmetic:
		if n.RHS == nil {
			return fmt.Sprintf("%s%s", n.Op, e.exprParen(n.LHS, n))
		}
		return fmt.Sprintf("%s %s %s", e.exprParen(n.LHS, n), n.Op, e.exprParen(n.RHS, n))
	case *Comparison:
		return fmt.Sprintf("%s %s %s", e.exprParen(n.LHS, n), n.Op, e.exprParen(n.RHS, n))
	case *Call:
		return e.callExpr(n)
	case *New:
		if n.Name != "" {
			return fmt.Sprintf("new %s()", n.Name)
		}
		return fmt.Sprintf("new %s()", n.Type)
	case *Cast:
		return fmt.Sprintf("(%s)%s", n.TargetType, e.expr(n.Expr))
	case *Closure:
		if n.Receiver != nil {
			return fmt.Sprintf("%s.method@%d", e.expr(n.Receiver), n.FIndex)
		}
		return fmt.Sprintf("f@%d", n.FIndex)
	case *EnumConstruct:
		return fmt.Sprintf("construct%d(%s)", n.Construct, e.exprList(n.Args))
	case *Raw:
		return opcodeSummary(n.Op)
	default:
		return "?"
	}
}

func (e *emitter) callExpr(c *Call) string {
	switch {
	case c.Target.Closure != nil:
		return fmt.Sprintf("%s(%s)", e.expr(c.Target.Closure), e.exprList(c.Args))
	case c.Target.Method:
		if len(c.Args) > 0 {
			return fmt.Sprintf("%s.method@%d(%s)", e.expr(c.Args[0]), c.Target.FIndex, e.exprList(c.Args[1:]))
		}
		return fmt.Sprintf("method@%d(%s)", c.Target.FIndex, e.exprList(c.Args))
	default:
		name := c.Target.Name
		if name == "" {
			name = fmt.Sprintf("f@%d", c.Target.FIndex)
		}
		return fmt.Sprintf("%s(%s)", name, e.exprList(c.Args))
	}
}

func (e *emitter) exprList(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = e.expr(a)
	}
	return strings.Join(parts, ", ")
}

// exprParen wraps child in parens when child is a comparison, or a
// binary arithmetic expression under an arithmetic parent whose
// operator differs or of which it is the right operand; an arithmetic
// operand of a comparison is left bare.
func (e *emitter) exprParen(child Expr, parent Expr) string {
	needsParen := false
	switch c := child.(type) {
	case *Arithmetic:
		if c.RHS != nil {
			if _, parentIsCompare := parent.(*Comparison); parentIsCompare {
				needsParen = false
			} else if pa, ok := parent.(*Arithmetic); ok && (pa.Op != c.Op || child == pa.RHS) {
				needsParen = true
			}
		}
	case *Comparison:
		needsParen = true
	}
	s := e.expr(child)
	if needsParen {
		return "(" + s + ")"
	}
	return s
}

func constLiteral(c *Const) string {
	switch c.Type {
	case hlbc.KindF32, hlbc.KindF64:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case hlbc.KindBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case hlbc.KindBytes:
		return strconv.Quote(c.Str)
	case hlbc.KindVoid, hlbc.KindDyn:
		return "null"
	default:
		return strconv.FormatInt(int64(c.Int), 10)
	}
}
