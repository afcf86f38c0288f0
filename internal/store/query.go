package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator of a Cond.
type Op int

const (
	OpEq Op = iota
	OpIn
	OpContains
	OpHasPrefix
	OpGte
	OpLt
	OpIsNull
	OpHasElement
	OpOr
	OpNot
)

// Cond is a filter over document fields. Field paths use dots for nesting
// (e.g. "home_buying_location.city"). Values compare as text, matching how
// PostgreSQL's ->> operator renders JSON scalars.
type Cond struct {
	Op     Op
	Field  string
	Values []string
	Sub    []Cond
}

func Eq(field string, v any) Cond { return Cond{Op: OpEq, Field: field, Values: []string{Text(v)}} }

func In(field string, vs ...any) Cond {
	vals := make([]string, 0, len(vs))
	for _, v := range vs {
		vals = append(vals, Text(v))
	}
	return Cond{Op: OpIn, Field: field, Values: vals}
}

// Contains is a case-insensitive substring match.
func Contains(field, substr string) Cond {
	return Cond{Op: OpContains, Field: field, Values: []string{substr}}
}

func HasPrefix(field, prefix string) Cond {
	return Cond{Op: OpHasPrefix, Field: field, Values: []string{prefix}}
}

func Gte(field string, v any) Cond { return Cond{Op: OpGte, Field: field, Values: []string{Text(v)}} }
func Lt(field string, v any) Cond  { return Cond{Op: OpLt, Field: field, Values: []string{Text(v)}} }
func IsNull(field string) Cond     { return Cond{Op: OpIsNull, Field: field} }

// HasElement matches documents whose array field contains v.
func HasElement(field string, v any) Cond {
	return Cond{Op: OpHasElement, Field: field, Values: []string{Text(v)}}
}

func Or(conds ...Cond) Cond { return Cond{Op: OpOr, Sub: conds} }
func Not(c Cond) Cond       { return Cond{Op: OpNot, Sub: []Cond{c}} }

// Query selects documents. Where conditions are AND-ed.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Path splits a dotted field path.
func Path(field string) []string {
	return strings.Split(field, ".")
}

// Text renders a value the way a JSON scalar reads back as text.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
