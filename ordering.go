package relaypager

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Direction defines the sort direction for the requested dataset.
type Direction string

const (
	DirectionASC  Direction = "ASC"
	DirectionDESC Direction = "DESC"
)

// ParseDirection normalizes a direction token, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("invalid ordering direction '%s'", s)
	}

	return d, nil
}

func (o Direction) Valid() bool {
	return o == DirectionASC || o == DirectionDESC
}

// AfterOperator returns the operator selecting the records that follow a
// boundary when paginating in this direction.
func (o Direction) AfterOperator() Operator {
	switch o {
	case DirectionASC:
		return OperatorGT
	case DirectionDESC:
		return OperatorLT
	default:
		panic(fmt.Errorf("cannot map direction '%s' to operator", o))
	}
}

// BeforeOperator returns the operator selecting the records that precede a
// boundary when paginating in this direction.
func (o Direction) BeforeOperator() Operator {
	return o.AfterOperator().Inverse()
}

// ValueType classifies an ordering attribute.
type ValueType int

const (
	ValueTypeOther ValueType = iota
	ValueTypePrimaryKeyInteger
	ValueTypeDatetime
)

// Schema describes the collection a Queryable ranges over.
type Schema interface {
	PrimaryKeyName() string
	// TableQualifiedName prefixes attribute with the collection's table name
	// unless it is already qualified.
	TableQualifiedName(attribute string) string
	AttributeType(attribute string) ValueType
}

// OrderKey is a single ordering column.
type OrderKey struct {
	// Attribute is the table-qualified column reference.
	Attribute  string
	Direction  Direction
	ValueType  ValueType
	PrimaryKey bool
}

// NewOrderKey builds an OrderKey for attribute of the collection described by
// schema. The direction is normalized; an empty direction means ascending.
func NewOrderKey(schema Schema, attribute string, direction Direction) OrderKey {
	qualified := schema.TableQualifiedName(attribute)
	direction = Direction(strings.ToUpper(string(direction)))

	return OrderKey{
		Attribute:  qualified,
		Direction:  lo.Ternary(direction == "", DirectionASC, direction),
		ValueType:  schema.AttributeType(attribute),
		PrimaryKey: qualified == schema.TableQualifiedName(schema.PrimaryKeyName()),
	}
}

// SelectAlias returns the alias the attribute is selected under during cursor
// resolution.
func (k OrderKey) SelectAlias() string {
	return strings.NewReplacer(".", "_", "`", "", `"`, "", "'", "").Replace(k.Attribute)
}

// SelectSQL returns "<attribute> AS <alias>".
func (k OrderKey) SelectSQL() string {
	return fmt.Sprintf("%s AS %s", k.Attribute, k.SelectAlias())
}

// OrderSQL returns "<attribute> <direction>".
func (k OrderKey) OrderSQL() string {
	return fmt.Sprintf("%s %s", k.Attribute, k.Direction)
}

func (k OrderKey) sufficient() bool {
	return k.PrimaryKey || k.ValueType == ValueTypePrimaryKeyInteger || k.ValueType == ValueTypeDatetime
}

// OrderSpec is the normalized ordering of a paginated relation. Key order
// defines the tuple comparison order.
type OrderSpec []OrderKey

// Direction returns the direction shared by every key.
func (o OrderSpec) Direction() Direction {
	if len(o) == 0 {
		return ""
	}

	return o[0].Direction
}

// Attributes returns the qualified attributes in key order.
func (o OrderSpec) Attributes() []string {
	return lo.Map(o, func(k OrderKey, _ int) string { return k.Attribute })
}

// ToSQLSlice converts OrderSpec to a slice of strings in the form
// "<order_column> <order_direction>" suitable for SQL query builders.
//
// Example: for [{"users.a", "ASC"}, {"users.b", "ASC"}] returns ["users.a ASC", "users.b ASC"].
func (o OrderSpec) ToSQLSlice() []string {
	return lo.Map(o, func(k OrderKey, _ int) string { return k.OrderSQL() })
}

// ToSQL converts OrderSpec to a single string
// "<order_column_1> <order_direction_1>, <order_column_2> <order_direction_2>"
// suitable for embedding into an SQL query.
func (o OrderSpec) ToSQL() string {
	return strings.Join(o.ToSQLSlice(), ", ")
}

func (o OrderSpec) sufficientlyOrdered() bool {
	return len(o) > 0 && lo.EveryBy(o, OrderKey.sufficient)
}

func (o OrderSpec) uniformDirection() bool {
	return len(lo.Uniq(lo.Map(o, func(k OrderKey, _ int) Direction { return k.Direction }))) == 1
}

// OrderClauseKind tags the shape an ordering clause was expressed in.
type OrderClauseKind int

const (
	// OrderClauseText is a textual clause such as "created_at desc, id".
	OrderClauseText OrderClauseKind = iota
	// OrderClauseColumn is a structured (table, column, direction) clause.
	OrderClauseColumn
	// OrderClauseExpression is any other ordering expression. It can't be
	// paginated and is always rejected.
	OrderClauseExpression
)

// OrderClause is one ordering clause as carried by a query.
type OrderClause struct {
	Kind   OrderClauseKind
	Text   string
	Table  string
	Column string
	Desc   bool
}

// TextOrder is a raw ORDER BY fragment such as "created_at desc, id".
func TextOrder(text string) OrderClause {
	return OrderClause{Kind: OrderClauseText, Text: text}
}

// ColumnOrder is a structured column ordering. table may be empty.
func ColumnOrder(table, column string, desc bool) OrderClause {
	return OrderClause{Kind: OrderClauseColumn, Table: table, Column: column, Desc: desc}
}

// ExpressionOrder is an arbitrary SQL expression. Pages reject it.
func ExpressionOrder(sql string) OrderClause {
	return OrderClause{Kind: OrderClauseExpression, Text: sql}
}

func (c OrderClause) blank() bool {
	switch c.Kind {
	case OrderClauseText, OrderClauseExpression:
		return strings.TrimSpace(c.Text) == ""
	default:
		return strings.TrimSpace(c.Column) == ""
	}
}

func (c OrderClause) String() string {
	if c.Kind == OrderClauseColumn {
		return fmt.Sprintf("%s %s",
			lo.Ternary(c.Table == "", c.Column, c.Table+"."+c.Column),
			lo.Ternary(c.Desc, DirectionDESC, DirectionASC))
	}

	return c.Text
}

var _availableColumnNameSymbols = append([]rune("_.'`\""), lo.AlphanumericCharset...)

func validateColumn(clause, column string) error {
	// Guard against SQL injection by restricting allowed characters in column names.
	if column == "" || !lo.Every(_availableColumnNameSymbols, []rune(column)) {
		return &OrderValueError{Clause: clause, Reason: "only plain column references are supported"}
	}

	return nil
}

func (c OrderClause) toOrderKeys(schema Schema) ([]OrderKey, error) {
	switch c.Kind {
	case OrderClauseColumn:
		attribute := lo.Ternary(c.Table == "", c.Column, c.Table+"."+c.Column)
		if err := validateColumn(c.String(), attribute); err != nil {
			return nil, err
		}

		return []OrderKey{NewOrderKey(schema, attribute, lo.Ternary(c.Desc, DirectionDESC, DirectionASC))}, nil
	case OrderClauseText:
		return parseOrderText(schema, c.Text)
	default:
		return nil, &OrderValueError{Clause: c.Text, Reason: "order values can't include expressions"}
	}
}

func parseOrderText(schema Schema, text string) ([]OrderKey, error) {
	if strings.ContainsAny(text, "()") {
		return nil, &OrderValueError{Clause: text, Reason: "order values can't include functions"}
	}

	keys := make([]OrderKey, 0, strings.Count(text, ",")+1)
	for _, part := range strings.Split(text, ",") {
		fields := strings.Fields(part)

		switch len(fields) {
		case 0:
			continue
		case 1, 2:
		default:
			return nil, &OrderValueError{Clause: text, Reason: "expected '<column> [asc|desc]'"}
		}

		if err := validateColumn(text, fields[0]); err != nil {
			return nil, err
		}

		direction := DirectionASC
		if len(fields) == 2 {
			var err error
			direction, err = ParseDirection(fields[1])
			if err != nil {
				return nil, &OrderValueError{Clause: text, Reason: err.Error()}
			}
		}

		keys = append(keys, NewOrderKey(schema, fields[0], direction))
	}

	return keys, nil
}

// NewOrderSpec derives the OrderSpec of a relation from its ordering clauses:
//   - blank and duplicate clauses are dropped;
//   - an empty ordering defaults to the primary key, ascending;
//   - a primary key tie-breaker is appended unless every key is the primary
//     key or a datetime;
//   - mixed directions fail with ErrConflictingOrders.
func NewOrderSpec(schema Schema, clauses []OrderClause) (OrderSpec, error) {
	return newOrderSpec(schema, clauses, zap.NewNop())
}

func newOrderSpec(schema Schema, clauses []OrderClause, log *zap.Logger) (OrderSpec, error) {
	clauses = lo.Reject(lo.Uniq(clauses), func(c OrderClause, _ int) bool { return c.blank() })

	spec := make(OrderSpec, 0, len(clauses)+1)
	for _, c := range clauses {
		keys, err := c.toOrderKeys(schema)
		if err != nil {
			return nil, err
		}

		spec = append(spec, keys...)
	}
	spec = lo.Uniq(spec)

	// A primary key anywhere in the ordering already makes it total.
	if !spec.sufficientlyOrdered() && !lo.SomeBy(spec, func(k OrderKey) bool { return k.PrimaryKey }) {
		direction := lo.Ternary(len(spec) == 0, DirectionASC, spec.Direction())
		spec = append(spec, NewOrderKey(schema, schema.PrimaryKeyName(), direction))
		log.Debug("appended primary key tie-breaker", zap.String("attribute", spec[len(spec)-1].Attribute))
	}

	if !spec.uniformDirection() {
		return nil, ErrConflictingOrders
	}

	log.Debug("order spec finalized", zap.String("order", spec.ToSQL()))

	return spec, nil
}
