package parse

import (
	"fmt"
	"strings"

	"github.com/heutelbeck/sapl-go/internal/compiler/body"
	"github.com/heutelbeck/sapl-go/internal/compiler/expr"
	"github.com/heutelbeck/sapl-go/internal/domain/policy"
	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// algorithms maps the six canonical combining-algorithm identifiers onto
// the {mode, defaultDecision, errorHandling} triples policy.ast.go
// defines, per spec.md's "algorithm names map one-to-one onto
// {mode, defaultDecision, errorHandling} triples". SAPL itself ships
// exactly these six names; deny-unless-permit/permit-unless-deny are the
// two whose errors are swallowed (ErrorHandling: Abstain) rather than
// propagated, so a misbehaving attribute or function can never escalate
// past their fixed default.
var algorithms = map[string]policy.CombiningAlgorithm{
	"deny-overrides":      {Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"permit-overrides":    {Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"only-one-applicable": {Mode: policy.Unique, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"first-applicable":    {Mode: policy.First, DefaultDecision: policy.DefaultAbstain, ErrorHandling: policy.Propagate},
	"deny-unless-permit":  {Mode: policy.PriorityPermit, DefaultDecision: policy.DefaultDeny, ErrorHandling: policy.Abstain},
	"permit-unless-deny":  {Mode: policy.PriorityDeny, DefaultDecision: policy.DefaultPermit, ErrorHandling: policy.Abstain},
}

type parser struct {
	toks []token
	pos  int
	name string
}

// ParseDocument parses one policy or policy-set document from source
// text. name is the document's identity for error messages and the
// SourceLocation attached to every parsed node.
func ParseDocument(name, src string) (policy.Document, error) {
	toks, err := tokenize(name, src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, name: name}
	doc, err := p.parseDocument()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input %q", p.cur().text)
	}
	return doc, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) peekAt(n int) token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.cur()
	return fmt.Errorf("parse: %s:%d:%d: %s", p.name, t.line, t.startC, fmt.Sprintf(format, args...))
}

func (p *parser) loc() value.SourceLocation {
	t := p.cur()
	return value.SourceLocation{DocumentName: p.name, Line: t.line, StartChar: t.startC, EndChar: t.endC}
}

func (p *parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) atPunct(s string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) advance() token {
	t := p.cur()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return p.errorf("expected %q", kw)
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return p.errorf("expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) acceptPunct(s string) bool {
	if p.atPunct(s) {
		p.advance()
		return true
	}
	return false
}

// parseDocument dispatches on the leading keyword: a source file holds
// exactly one policy or one policy set, mirroring the teacher's
// one-document-per-source-unit model for its own gateway config files.
func (p *parser) parseDocument() (policy.Document, error) {
	switch {
	case p.atKeyword("policy"):
		return p.parsePolicy()
	case p.atKeyword("set"):
		return p.parsePolicySet()
	default:
		return nil, p.errorf("expected \"policy\" or \"set\"")
	}
}

func (p *parser) parseName() (string, error) {
	t := p.cur()
	switch {
	case t.kind == tokString:
		p.advance()
		return t.text, nil
	case t.kind == tokIdent:
		p.advance()
		return t.text, nil
	default:
		return "", p.errorf("expected a name")
	}
}

func (p *parser) parsePolicy() (*policy.Policy, error) {
	loc := p.loc()
	if err := p.expectKeyword("policy"); err != nil {
		return nil, err
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}

	var entitlement policy.Entitlement
	switch {
	case p.atKeyword("permit"):
		entitlement = policy.Permit
	case p.atKeyword("deny"):
		entitlement = policy.Deny
	default:
		return nil, p.errorf("expected \"permit\" or \"deny\"")
	}
	p.advance()

	var stmts []body.Statement
	if p.atKeyword("where") {
		p.advance()
		stmts, err = p.parseStatementList()
		if err != nil {
			return nil, err
		}
	}

	constraints, err := p.parseConstraints()
	if err != nil {
		return nil, err
	}

	return &policy.Policy{
		Name:           name,
		Entitlement:    entitlement,
		Body:           stmts,
		Constraints:    constraints,
		SourceLocation: loc,
	}, nil
}

// parseStatementList reads `stmt (";" stmt)* ";"`: statements separated
// by ";" with a mandatory trailing separator before whatever follows
// the where clause (obligation/advice/transform, the next policy or set
// inside an enclosing set, or end of document).
func (p *parser) parseStatementList() ([]body.Statement, error) {
	var stmts []body.Statement
	for {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		if p.atKeyword("obligation") || p.atKeyword("advice") || p.atKeyword("transform") ||
			p.atKeyword("policy") || p.atKeyword("set") || p.atEOF() {
			return stmts, nil
		}
	}
}

func (p *parser) parseStatement() (body.Statement, error) {
	if p.atKeyword("var") {
		p.advance()
		name, err := p.parseIdentName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return body.VarDef{Name: name, Expr: e}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return body.Condition{Expr: e}, nil
}

func (p *parser) parseIdentName() (string, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return "", p.errorf("expected an identifier")
	}
	p.advance()
	return t.text, nil
}

func (p *parser) parseConstraints() (policy.Constraints, error) {
	var c policy.Constraints
	for {
		switch {
		case p.atKeyword("obligation"):
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return c, err
			}
			c.Obligations = append(c.Obligations, e)
		case p.atKeyword("advice"):
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return c, err
			}
			c.Advice = append(c.Advice, e)
		case p.atKeyword("transform"):
			p.advance()
			e, err := p.parseExpr()
			if err != nil {
				return c, err
			}
			c.Transform = e
		default:
			return c, nil
		}
	}
}

func (p *parser) parsePolicySet() (*policy.PolicySet, error) {
	loc := p.loc()
	if err := p.expectKeyword("set"); err != nil {
		return nil, err
	}
	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	algName, err := p.parseAlgorithmName()
	if err != nil {
		return nil, err
	}
	algo, ok := algorithms[algName]
	if !ok {
		return nil, p.errorf("unknown combining algorithm %q", algName)
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	var children []policy.Document
	for p.atKeyword("policy") || p.atKeyword("set") {
		child, err := p.parseDocument()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return &policy.PolicySet{
		Name:           name,
		Algorithm:      algo,
		Policies:       children,
		SourceLocation: loc,
	}, nil
}

// parseAlgorithmName reads a hyphenated identifier like
// "deny-overrides" as the sequence of ident/"-" tokens up to the
// closing ")", since the lexer treats "-" as ordinary punctuation and
// never glues it onto an adjacent identifier.
func (p *parser) parseAlgorithmName() (string, error) {
	var sb strings.Builder
	for {
		t := p.cur()
		if t.kind == tokIdent || t.kind == tokKeyword {
			sb.WriteString(t.text)
			p.advance()
			continue
		}
		if t.kind == tokPunct && t.text == "-" {
			sb.WriteString("-")
			p.advance()
			continue
		}
		break
	}
	if sb.Len() == 0 {
		return "", p.errorf("expected a combining algorithm name")
	}
	return sb.String(), nil
}

// --- expression grammar: || < && < ==/!= < in < </<=/>/>= < +/- < * / % < unary < postfix < primary ---

func (p *parser) parseExpr() (expr.Node, error) { return p.parseOr() }

func (p *parser) parseOr() (expr.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atPunct("||") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = expr.Logical{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr.Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.atPunct("&&") {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = expr.Logical{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (expr.Node, error) {
	left, err := p.parseIn()
	if err != nil {
		return nil, err
	}
	for p.atPunct("==") || p.atPunct("!=") {
		op := p.advance().text
		right, err := p.parseIn()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseIn() (expr.Node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("in") {
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: "in", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRelational() (expr.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.atPunct("<") || p.atPunct("<=") || p.atPunct(">") || p.atPunct(">=") {
		op := p.advance().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (expr.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atPunct("+") || p.atPunct("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (expr.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atPunct("*") || p.atPunct("/") || p.atPunct("%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr.Node, error) {
	if p.atPunct("!") || p.atPunct("-") {
		op := p.advance().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression, then a chain of field
// access, indexing, and attribute access, folding runs of ".ident" into
// either nested Field nodes or — once "(" follows the run — a single
// Call whose FullName is the dotted chain collected so far
// ("library.function(args)"), per spec.md §4.3's function-naming grammar.
func (p *parser) parsePostfix() (expr.Node, error) {
	node, dotted, dottedValid, err := p.parsePrimaryChain()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atPunct("."):
			p.advance()
			if p.atPunct("<") {
				p.advance()
				attrName, err := p.parseDottedIdent()
				if err != nil {
					return nil, err
				}
				var args []expr.Node
				if p.acceptPunct("(") {
					args, err = p.parseArgs()
					if err != nil {
						return nil, err
					}
				}
				if err := p.expectPunct(">"); err != nil {
					return nil, err
				}
				node = expr.AttributeAccess{Entity: node, Name: attrName, Args: args}
				dottedValid = false
				continue
			}
			key, err := p.parseIdentName()
			if err != nil {
				return nil, err
			}
			if dottedValid && p.atPunct("(") {
				dotted = dotted + "." + key
				p.advance()
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				node = expr.Call{FullName: dotted, Args: args}
				dottedValid = false
				continue
			}
			node = expr.Field{Target: node, Key: key}
			if dottedValid {
				dotted = dotted + "." + key
			}
		case p.atPunct("["):
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			node = expr.Index{Target: node, Index: idx}
			dottedValid = false
		default:
			return node, nil
		}
	}
}

// parsePrimaryChain parses one primary and, when it starts a plain
// identifier, returns the dotted-name bookkeeping parsePostfix needs to
// decide Field-vs-Call for what follows.
func (p *parser) parsePrimaryChain() (expr.Node, string, bool, error) {
	t := p.cur()
	if t.kind == tokIdent {
		p.advance()
		if p.atPunct("(") {
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, "", false, err
			}
			return expr.Call{FullName: t.text, Args: args}, "", false, nil
		}
		return expr.VarRef{Name: t.text}, t.text, true, nil
	}
	node, err := p.parsePrimary()
	return node, "", false, err
}

func (p *parser) parsePrimary() (expr.Node, error) {
	t := p.cur()
	switch {
	case t.kind == tokNumber:
		p.advance()
		return expr.Literal{Value: value.NewNumberString(t.text)}, nil

	case t.kind == tokString:
		p.advance()
		return expr.Literal{Value: value.Text(t.text)}, nil

	case t.kind == tokKeyword && t.text == "true":
		p.advance()
		return expr.Literal{Value: value.Boolean(true)}, nil

	case t.kind == tokKeyword && t.text == "false":
		p.advance()
		return expr.Literal{Value: value.Boolean(false)}, nil

	case t.kind == tokKeyword && t.text == "null":
		p.advance()
		return expr.Literal{Value: value.Null}, nil

	case t.kind == tokKeyword && t.text == "undefined":
		p.advance()
		return expr.Literal{Value: value.Undefined}, nil

	case t.kind == tokPunct && t.text == "(":
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil

	case t.kind == tokPunct && t.text == "@":
		p.advance()
		return expr.RelativeResource{}, nil

	case t.kind == tokPunct && t.text == "#":
		p.advance()
		return expr.RelativeIndex{}, nil

	case t.kind == tokPunct && t.text == "<":
		p.advance()
		name, err := p.parseDottedIdent()
		if err != nil {
			return nil, err
		}
		var args []expr.Node
		if p.acceptPunct("(") {
			args, err = p.parseArgs()
			if err != nil {
				return nil, err
			}
		}
		if err := p.expectPunct(">"); err != nil {
			return nil, err
		}
		return expr.AttributeAccess{Name: name, Args: args}, nil

	case t.kind == tokPunct && t.text == "[":
		p.advance()
		var elems []expr.Node
		for !p.atPunct("]") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if !p.acceptPunct(",") {
				break
			}
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return expr.ArrayLit{Elements: elems}, nil

	case t.kind == tokPunct && t.text == "{":
		p.advance()
		var keys []string
		var vals []expr.Node
		for !p.atPunct("}") {
			key, err := p.parseObjectKey()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
			vals = append(vals, v)
			if !p.acceptPunct(",") {
				break
			}
		}
		if err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return expr.ObjectLit{Keys: keys, Values: vals}, nil

	default:
		return nil, p.errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseObjectKey() (string, error) {
	t := p.cur()
	if t.kind == tokString || t.kind == tokIdent {
		p.advance()
		return t.text, nil
	}
	return "", p.errorf("expected an object key")
}

// parseDottedIdent reads a namespaced attribute/function name such as
// "sensor.online", used inside "<...>" attribute access.
func (p *parser) parseDottedIdent() (string, error) {
	name, err := p.parseIdentName()
	if err != nil {
		return "", err
	}
	for p.atPunct(".") {
		if p.peekAt(1).kind != tokIdent {
			break
		}
		p.advance()
		seg, err := p.parseIdentName()
		if err != nil {
			return "", err
		}
		name = name + "." + seg
	}
	return name, nil
}

func (p *parser) parseArgs() ([]expr.Node, error) {
	var args []expr.Node
	for !p.atPunct(")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}
