package expr

// ContainsRelativeAccessor reports whether node contains a `@` or `#`
// relative accessor anywhere in its subtree. The policy compiler (C6)
// uses this to reject their use outside `transform`, per spec.md §4.6.
func ContainsRelativeAccessor(node Node) bool {
	switch n := node.(type) {
	case RelativeResource, RelativeIndex:
		return true
	case Literal, VarRef:
		return false
	case Field:
		return ContainsRelativeAccessor(n.Target)
	case Index:
		return ContainsRelativeAccessor(n.Target) || ContainsRelativeAccessor(n.Index)
	case Unary:
		return ContainsRelativeAccessor(n.Operand)
	case Binary:
		return ContainsRelativeAccessor(n.Left) || ContainsRelativeAccessor(n.Right)
	case Logical:
		return ContainsRelativeAccessor(n.Left) || ContainsRelativeAccessor(n.Right)
	case Call:
		for _, a := range n.Args {
			if ContainsRelativeAccessor(a) {
				return true
			}
		}
		return false
	case AttributeAccess:
		if n.Entity != nil && ContainsRelativeAccessor(n.Entity) {
			return true
		}
		for _, a := range n.Args {
			if ContainsRelativeAccessor(a) {
				return true
			}
		}
		return false
	case ArrayLit:
		for _, e := range n.Elements {
			if ContainsRelativeAccessor(e) {
				return true
			}
		}
		return false
	case ObjectLit:
		for _, v := range n.Values {
			if ContainsRelativeAccessor(v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
