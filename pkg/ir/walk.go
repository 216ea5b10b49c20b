package ir

// transformExpr applies f to every expression in e's subtree, in
// post-order (children first), rebuilding each node in place and
// returning the (possibly replaced) root.
func transformExpr(e Expr, f func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *Field:
		n.Obj = transformExpr(n.Obj, f)
		return f(n)
	case *Arithmetic:
		n.LHS = transformExpr(n.LHS, f)
		if n.RHS != nil {
			n.RHS = transformExpr(n.RHS, f)
		}
		return f(n)
	case *Comparison:
		n.LHS = transformExpr(n.LHS, f)
		n.RHS = transformExpr(n.RHS, f)
		return f(n)
	case *Call:
		for i := range n.Args {
			n.Args[i] = transformExpr(n.Args[i], f)
		}
		if n.Target.Closure != nil {
			n.Target.Closure = transformExpr(n.Target.Closure, f)
		}
		return f(n)
	case *Cast:
		n.Expr = transformExpr(n.Expr, f)
		return f(n)
	case *Closure:
		if n.Receiver != nil {
			n.Receiver = transformExpr(n.Receiver, f)
		}
		return f(n)
	case *EnumConstruct:
		for i := range n.Args {
			n.Args[i] = transformExpr(n.Args[i], f)
		}
		return f(n)
	default:
		// Const, Local, Arg, New, Raw: no child expressions.
		return f(e)
	}
}

// walkExprsStmt applies f to every expression reachable from s,
// including those inside any nested Block (Conditional/Loop/Switch/Try
// bodies), mutating s's fields in place.
func walkExprsStmt(s Stmt, f func(Expr) Expr) {
	switch n := s.(type) {
	case *Assign:
		n.Dst = transformExpr(n.Dst, f)
		n.Src = transformExpr(n.Src, f)
	case *ExprStmt:
		n.Expr = transformExpr(n.Expr, f)
	case *Return:
		if n.Value != nil {
			n.Value = transformExpr(n.Value, f)
		}
	case *Throw:
		if n.Value != nil {
			n.Value = transformExpr(n.Value, f)
		}
	case *Conditional:
		n.Cond = transformExpr(n.Cond, f)
		walkExprsBlock(&n.Then, f)
		walkExprsBlock(&n.Else, f)
	case *Loop:
		if n.Cond != nil {
			n.Cond = transformExpr(n.Cond, f)
		}
		walkExprsBlock(&n.Body, f)
	case *Switch:
		n.Scrutinee = transformExpr(n.Scrutinee, f)
		for i := range n.Cases {
			walkExprsBlock(&n.Cases[i].Body, f)
		}
		walkExprsBlock(&n.Default, f)
	case *Try:
		walkExprsBlock(&n.Body, f)
		for i := range n.Catches {
			walkExprsBlock(&n.Catches[i].Body, f)
		}
	case *PrimitiveJump, *UntranslatedOpcode, *Break, *Continue:
		// no expression operands.
	}
}

// walkExprsBlock applies f to every expression in b, recursively,
// mutating in place.
func walkExprsBlock(b *Block, f func(Expr) Expr) {
	for i := range b.Stmts {
		walkExprsStmt(b.Stmts[i], f)
	}
}

// walkExprs is an alias for walkExprsBlock kept for call-site clarity
// at the top of a function body.
func walkExprs(b *Block, f func(Expr) Expr) {
	walkExprsBlock(b, f)
}
