// Package quantity wraps resource.Quantity with value semantics so claim
// sizes can be summed exactly across any number of events.
package quantity

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Quantity is an immutable, exact storage size. The zero value is 0.
type Quantity struct {
	q resource.Quantity
}

// ParseError reports a malformed quantity string.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid quantity %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses a unit-suffixed quantity such as "10Gi" or "500M".
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Quantity{}, &ParseError{Value: s, Err: resource.ErrFormatWrong}
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return Quantity{}, &ParseError{Value: s, Err: err}
	}
	return Quantity{q: q}, nil
}

// MustParse is Parse for constants and tests. It panics on error.
func MustParse(s string) Quantity {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// FromResource copies a resource.Quantity.
func FromResource(q resource.Quantity) Quantity {
	return Quantity{q: q.DeepCopy()}
}

// Zero returns 0 rendered with binary suffixes once it grows.
func Zero() Quantity {
	return Quantity{q: *resource.NewQuantity(0, resource.BinarySI)}
}

// Add returns a+b. Neither operand is modified.
func Add(a, b Quantity) Quantity {
	sum := a.q.DeepCopy()
	sum.Add(b.q)
	return Quantity{q: sum}
}

// Sub returns a-b. Neither operand is modified.
func Sub(a, b Quantity) Quantity {
	diff := a.q.DeepCopy()
	diff.Sub(b.q)
	return Quantity{q: diff}
}

// Cmp returns -1, 0 or 1 when a is less than, equal to or greater than b.
func Cmp(a, b Quantity) int {
	return a.q.Cmp(b.q)
}

// PercentOf returns value/limit*100 for display. Comparisons must use Cmp.
func PercentOf(value, limit Quantity) float64 {
	if limit.IsZero() {
		return 0
	}
	return value.Float64() / limit.Float64() * 100
}

// Add returns q+o.
func (q Quantity) Add(o Quantity) Quantity { return Add(q, o) }

// Sub returns q-o.
func (q Quantity) Sub(o Quantity) Quantity { return Sub(q, o) }

// Cmp compares q with o.
func (q Quantity) Cmp(o Quantity) int { return Cmp(q, o) }

func (q Quantity) IsZero() bool { return q.q.IsZero() }

// Sign returns -1, 0 or 1 for negative, zero and positive quantities.
func (q Quantity) Sign() int { return q.q.Sign() }

// Equal reports whether q and o denote the same amount, regardless of format.
func (q Quantity) Equal(o Quantity) bool { return q.q.Cmp(o.q) == 0 }

// String returns the canonical suffixed form, e.g. "150Gi".
func (q Quantity) String() string {
	c := q.q.DeepCopy()
	return c.String()
}

// Bytes returns q rounded up to a whole number of bytes.
func (q Quantity) Bytes() int64 { return q.q.Value() }

// Float64 approximates q for gauges and percentages.
func (q Quantity) Float64() float64 { return q.q.AsApproximateFloat64() }

// Resource returns a copy of the underlying resource.Quantity.
func (q Quantity) Resource() resource.Quantity {
	return q.q.DeepCopy()
}
