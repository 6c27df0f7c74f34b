package tracefs

import "fmt"

// FilterKind identifies one token appended to a filter expression.
type FilterKind int

const (
	FilterCompare FilterKind = iota
	FilterAnd
	FilterOr
	FilterNot
	FilterOpenParen
	FilterCloseParen
)

// Compare identifies how a compared field relates to its value.
type Compare int

const (
	CompareEQ Compare = iota
	CompareNE
	CompareGT
	CompareGE
	CompareLT
	CompareLE
	CompareRE
	CompareAnd
)

func (c Compare) symbol() string {
	switch c {
	case CompareEQ:
		return "=="
	case CompareNE:
		return "!="
	case CompareGT:
		return ">"
	case CompareGE:
		return ">="
	case CompareLT:
		return "<"
	case CompareLE:
		return "<="
	case CompareRE:
		return "~"
	case CompareAnd:
		return "&"
	default:
		return "=="
	}
}

// filterGrammarState tracks whether the next token must be an operand
// (a COMPARE or an opening construct) or an operator (AND/OR/CLOSE_PAREN),
// plus the count of currently-open parens. It is carried alongside the
// filter string and co-mutated with it so rollback can restore both
// together.
type filterGrammarState int

const (
	stateNeedOperand filterGrammarState = iota
	stateHaveOperand
)

// FilterState is the grammar state + paren depth the core carries
// alongside a filter expression buffer, mirroring trace_append_filter's
// (state, parens) pair in the original C library.
type FilterState struct {
	expr   string
	state  filterGrammarState
	parens uint
}

// String returns the filter expression accumulated so far.
func (f *FilterState) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// WellFormed reports whether the filter can be closed right now: every
// opened paren is either closed or closable, and the expression does not
// end on a dangling operator awaiting an operand. This is the Go
// rendering of the original's trace_test_state check, invoked by
// SyntheticDescriptor.Create before it writes anything.
func (f *FilterState) WellFormed() bool {
	if f == nil || f.expr == "" {
		return true
	}
	return f.state == stateHaveOperand
}

func (f *FilterState) clone() *FilterState {
	if f == nil {
		return &FilterState{}
	}
	return &FilterState{expr: f.expr, state: f.state, parens: f.parens}
}

// appendFilter is the Filter expression builder: it appends one token to
// buf's running expression, validating field existence/compatibility
// against ev and maintaining the grammar state machine. On any error the
// receiver is left completely unchanged (this function only ever
// mutates a local copy, swapped in on success).
func appendFilter(op string, buf *FilterState, ev *Event, kind FilterKind, field string, cmp Compare, val string) (*FilterState, error) {
	next := buf.clone()

	switch kind {
	case FilterCompare:
		if next.state != stateNeedOperand {
			return nil, newError(op, InvalidArgument, "expected an operator, got a comparison")
		}
		if ev == nil {
			return nil, newError(op, InvalidArgument, "no event bound for filter")
		}
		f, ok := ev.Field(field)
		if !ok {
			return nil, newError(op, NoSuchField, "%s", field)
		}
		if f.IsArray || f.IsDynamic {
			switch cmp {
			case CompareEQ, CompareNE, CompareRE:
			default:
				return nil, newError(op, InvalidArgument, "field %q is a string; only ==, !=, ~ are valid", field)
			}
		}
		next.expr += fmt.Sprintf("%s%s%s", field, cmp.symbol(), val)
		next.state = stateHaveOperand
	case FilterAnd:
		if next.state != stateHaveOperand {
			return nil, newError(op, InvalidArgument, "&& must follow an operand")
		}
		next.expr += "&&"
		next.state = stateNeedOperand
	case FilterOr:
		if next.state != stateHaveOperand {
			return nil, newError(op, InvalidArgument, "|| must follow an operand")
		}
		next.expr += "||"
		next.state = stateNeedOperand
	case FilterNot:
		if next.state != stateNeedOperand {
			return nil, newError(op, InvalidArgument, "! must precede an operand")
		}
		next.expr += "!"
	case FilterOpenParen:
		if next.state != stateNeedOperand {
			return nil, newError(op, InvalidArgument, "( must precede an operand")
		}
		next.expr += "("
		next.parens++
	case FilterCloseParen:
		if next.state != stateHaveOperand {
			return nil, newError(op, InvalidArgument, ") must follow an operand")
		}
		if next.parens == 0 {
			return nil, newError(op, InvalidArgument, "unmatched )")
		}
		next.expr += ")"
		next.parens--
	default:
		return nil, newError(op, InvalidArgument, "unknown filter kind %d", kind)
	}

	return next, nil
}
