package relaypager

import (
	"fmt"

	"gorm.io/gorm/clause"
)

type (
	tConjunct struct {
		Column   string
		Value    any
		Operator Operator
	}

	tDisjunct []tConjunct

	// tDNF represents the disjunctive normal form (DNF) of a logical expression.
	// Each disjunct is joined by OR, and each disjunct consists of a list of
	// conjuncts which are joined by AND. A conjunct is the value of
	// Operator(Column, Value).
	//
	// Thus:
	//
	//	DNF = X1 OR X2 ... OR Xn, where Xi = Ai1 AND Ai2 ... AND Aim.
	//	DNF = (A11 AND A12 AND A13) OR (A21 AND A22 AND A23), for n=2, m=3.
	//
	//  Where (A11 AND A12 AND A13), (A21 AND A22 AND A23) are disjuncts and
	//  A11, A12, A13, A21, A22, A23 are conjuncts.
	tDNF []tDisjunct
)

// expandRowComparison rewrites the row comparison
//
//	(C1, C2, ... Cn) O (V1, V2, ... Vn)
//
// into the equivalent DNF
//
//	(C1 O V1) OR (C1 = V1 AND C2 O V2) OR ... OR (C1 = V1 AND ... AND Cn O Vn)
//
// so that ties on the leading columns are settled by the following ones, the
// same way a row value comparison does.
func expandRowComparison(op Operator, columns []string, values []any) tDNF {
	dnf := make(tDNF, 0, len(columns))
	for i := range columns {
		disjunct := make(tDisjunct, 0, i+1)
		for j := 0; j < i; j++ {
			disjunct = append(disjunct, tConjunct{Column: columns[j], Value: values[j], Operator: operatorEq})
		}
		disjunct = append(disjunct, tConjunct{Column: columns[i], Value: values[i], Operator: op})

		dnf = append(dnf, disjunct)
	}

	return dnf
}

// toGORMExpression converts a conjunct of the form Operator(Column, Value)
// into an SQL condition "Column Operator Value" represented as a clause.Expression.
//
// IMPORTANT: The method uses the SQL placeholder "?".
//
// Example:
//
//	tConjunct = { Column: "id", Operator: ">", Value: "123"}
//
// Result:
//
//	"id > 123"
func (c tConjunct) toGORMExpression() clause.Expression {
	return clause.Expr{
		SQL:  fmt.Sprintf("%s %s ?", c.Column, c.Operator),
		Vars: []any{c.Value},
	}
}

// toGORMExpression converts a disjunct (K1, K2, K3) into a gorm expression
// "K1 AND K2 AND K3" where each Ki is expanded via tConjunct.toGORMExpression.
func (d tDisjunct) toGORMExpression() clause.Expression {
	andExpressions := make([]clause.Expression, 0, len(d))
	for _, conjunct := range d {
		andExpressions = append(andExpressions, conjunct.toGORMExpression())
	}

	if len(andExpressions) == 1 {
		return andExpressions[0]
	} else if len(andExpressions) > 1 {
		return clause.And(andExpressions...)
	}

	return nil
}

// toGORMExpression converts a DNF (tDNF) into a clause.Expression.
// For each disjunct it calls tDisjunct.toGORMExpression and joins disjuncts with OR.
func (d tDNF) toGORMExpression() clause.Expression {
	orExpressions := make([]clause.Expression, 0, len(d))

	for _, disjunct := range d {
		andExpressions := disjunct.toGORMExpression()
		if andExpressions == nil {
			continue
		}

		orExpressions = append(orExpressions, andExpressions)
	}

	if len(orExpressions) == 1 {
		return orExpressions[0]
	} else if len(orExpressions) > 1 {
		return clause.Or(orExpressions...)
	}

	return nil
}
