// Package filter implements C7: a MongoDB-inspired filter grammar evaluated
// as an in-memory predicate over a document's column fields and user
// metadata map. Evaluation fails closed — a type mismatch makes a
// sub-predicate false, it never panics or errors mid-search.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/ragerr"
)

// Tree is a parsed filter, ready to evaluate against a Document.
type Tree struct {
	node node
}

// Document is the minimal view of a document the evaluator needs: column
// fields resolved directly, everything else read from metadata.
type Document struct {
	Columns  map[string]any
	Metadata map[string]any
}

// Parse builds a Tree from a raw filter expressed as the implicit-$and,
// implicit-$eq grammar of §4.7. An empty/nil input parses to an
// always-true Tree.
func Parse(raw json.RawMessage) (*Tree, error) {
	if len(raw) == 0 {
		return &Tree{node: andNode{}}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("filter.Parse: %w: %v", ragerr.ErrInvalidFilter, err)
	}
	n, err := parseMap(m)
	if err != nil {
		return nil, err
	}
	return &Tree{node: n}, nil
}

// Eval reports whether doc satisfies the filter.
func (t *Tree) Eval(doc Document) bool {
	return t.node.eval(doc)
}

type node interface {
	eval(doc Document) bool
}

// andNode is the implicit top-level combinator: all sibling keys/clauses
// must hold.
type andNode struct{ clauses []node }

func (n andNode) eval(doc Document) bool {
	for _, c := range n.clauses {
		if !c.eval(doc) {
			return false
		}
	}
	return true
}

type orNode struct{ clauses []node }

func (n orNode) eval(doc Document) bool {
	for _, c := range n.clauses {
		if c.eval(doc) {
			return true
		}
	}
	return false
}

type norNode struct{ clauses []node }

func (n norNode) eval(doc Document) bool {
	for _, c := range n.clauses {
		if c.eval(doc) {
			return false
		}
	}
	return true
}

type notNode struct{ inner node }

func (n notNode) eval(doc Document) bool { return !n.inner.eval(doc) }

// fieldNode evaluates a single field against one or more operator clauses.
type fieldNode struct {
	field string
	ops   []fieldOp
}

type fieldOp struct {
	op  string
	arg any
}

func (n fieldNode) eval(doc Document) bool {
	value, present := lookup(doc, n.field)
	for _, op := range n.ops {
		if !evalOp(op.op, op.arg, value, present) {
			return false
		}
	}
	return true
}

func lookup(doc Document, field string) (any, bool) {
	if v, ok := doc.Columns[field]; ok {
		return v, true
	}
	v, ok := doc.Metadata[field]
	return v, ok
}

// parseMap parses a JSON-object level: sibling keys are implicit $and.
func parseMap(m map[string]any) (node, error) {
	var clauses []node
	for key, val := range m {
		n, err := parseClause(key, val)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, n)
	}
	return andNode{clauses: clauses}, nil
}

func parseClause(key string, val any) (node, error) {
	switch key {
	case "$and":
		return parseLogicalArray(val, func(c []node) node { return andNode{clauses: c} })
	case "$or":
		return parseLogicalArray(val, func(c []node) node { return orNode{clauses: c} })
	case "$nor":
		return parseLogicalArray(val, func(c []node) node { return norNode{clauses: c} })
	case "$not":
		sub, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter.parseClause: $not requires an object: %w", ragerr.ErrInvalidFilter)
		}
		inner, err := parseMap(sub)
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	default:
		return parseField(key, val)
	}
}

func parseLogicalArray(val any, build func([]node) node) (node, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("filter.parseLogicalArray: expected array: %w", ragerr.ErrInvalidFilter)
	}
	var clauses []node
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter.parseLogicalArray: expected object in array: %w", ragerr.ErrInvalidFilter)
		}
		n, err := parseMap(m)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, n)
	}
	return build(clauses), nil
}

var operators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$all": true, "$exists": true,
}

// parseField parses {field: value}. A scalar value is implicit $eq; an
// object value is one or more operator clauses.
func parseField(field string, val any) (node, error) {
	obj, isObj := val.(map[string]any)
	if !isObj {
		return fieldNode{field: field, ops: []fieldOp{{op: "$eq", arg: val}}}, nil
	}

	var ops []fieldOp
	for op, arg := range obj {
		if !operators[op] {
			return nil, fmt.Errorf("filter.parseField: unknown operator %q: %w", op, ragerr.ErrInvalidFilter)
		}
		ops = append(ops, fieldOp{op: op, arg: arg})
	}
	return fieldNode{field: field, ops: ops}, nil
}

// evalOp evaluates one operator against a looked-up value. Type mismatches
// resolve to false rather than erroring, per the fail-closed contract.
func evalOp(op string, arg any, value any, present bool) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$eq":
		return present && equalValue(value, arg)
	case "$ne":
		return !present || !equalValue(value, arg)
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		return compareOp(op, value, arg)
	case "$in":
		if !present {
			return false
		}
		items, ok := arg.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if equalValue(value, item) {
				return true
			}
		}
		return false
	case "$nin":
		return !evalOp("$in", arg, value, present)
	case "$all":
		if !present {
			return false
		}
		items, ok := arg.([]any)
		if !ok {
			return false
		}
		values, ok := toSlice(value)
		if !ok {
			return false
		}
		for _, want := range items {
			found := false
			for _, v := range values {
				if equalValue(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return false
}

// compareOp handles numeric and ISO-8601 string ordered comparisons.
func compareOp(op string, value, arg any) bool {
	if vf, vok := toFloat(value); vok {
		if af, aok := toFloat(arg); aok {
			return compareFloats(op, vf, af)
		}
	}
	if vs, vok := value.(string); vok {
		if as, aok := arg.(string); aok {
			if vt, aerr := time.Parse(time.RFC3339, vs); aerr == nil {
				if at, berr := time.Parse(time.RFC3339, as); berr == nil {
					return compareTimes(op, vt, at)
				}
			}
			return compareStrings(op, vs, as)
		}
	}
	return false
}

func compareFloats(op string, v, a float64) bool {
	switch op {
	case "$gt":
		return v > a
	case "$gte":
		return v >= a
	case "$lt":
		return v < a
	case "$lte":
		return v <= a
	}
	return false
}

func compareStrings(op, v, a string) bool {
	c := strings.Compare(v, a)
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

func compareTimes(op string, v, a time.Time) bool {
	switch op {
	case "$gt":
		return v.After(a)
	case "$gte":
		return v.After(a) || v.Equal(a)
	case "$lt":
		return v.Before(a)
	case "$lte":
		return v.Before(a) || v.Equal(a)
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
