package relaypager

import "fmt"

// Operator defines a comparison operator for the boundary predicate.
type Operator string

const (
	OperatorGT Operator = ">"
	OperatorLT Operator = "<"

	// operatorEq is the equality operator. It is private because we use it
	// ONLY while expanding row comparisons.
	operatorEq Operator = "="
)

func (o Operator) Valid() bool {
	return o == OperatorLT || o == OperatorGT
}

// Inverse returns the opposite strict comparison.
func (o Operator) Inverse() Operator {
	switch o {
	case OperatorGT:
		return OperatorLT
	case OperatorLT:
		return OperatorGT
	default:
		panic(fmt.Errorf("cannot invert operator '%s'", o))
	}
}
