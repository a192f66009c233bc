package relaypager

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// GORMQuery is a Queryable over a gorm query whose records are of model type T.
//
// The wrapped *gorm.DB is never mutated: each derivation works on a cloned
// statement, so one GORMQuery can safely back the lookup, count, probe and
// fetch queries of a Page.
type GORMQuery[T any] struct {
	db       *gorm.DB
	schema   *schema.Schema
	table    string
	expanded bool
}

// NewGORMQuery wraps db. T must be a gorm model with a primary key. The model
// is set on db unless db already carries one.
func NewGORMQuery[T any](db *gorm.DB) (*GORMQuery[T], error) {
	if db == nil {
		return nil, errors.New("gorm db is nil")
	}

	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("cannot parse model schema: %w", err)
	}

	if stmt.Schema.PrioritizedPrimaryField == nil {
		return nil, fmt.Errorf("model '%s' has no primary key", stmt.Schema.Name)
	}

	if db.Statement.Model == nil {
		db = db.Model(new(T))
	}

	return &GORMQuery[T]{
		db:     db.Session(&gorm.Session{}),
		schema: stmt.Schema,
		table:  lo.Ternary(db.Statement.Table != "", db.Statement.Table, stmt.Schema.Table),
	}, nil
}

// Paginate builds a Page over db for records of model type T.
func Paginate[T any](db *gorm.DB, args Args, opts ...Option) (*Page[T], error) {
	query, err := NewGORMQuery[T](db)
	if err != nil {
		return nil, fmt.Errorf("cannot paginate: %w", err)
	}

	return NewPage[T](query, args, opts...)
}

// WithExpandedPredicates renders boundary predicates as
//
//	(a > ?) OR (a = ? AND b > ?)
//
// instead of the row comparison (a, b) > (?, ?). Use it for dialects without
// row value support.
func (q *GORMQuery[T]) WithExpandedPredicates() *GORMQuery[T] {
	c := *q
	c.expanded = true

	return &c
}

// DB returns the wrapped query.
func (q *GORMQuery[T]) DB() *gorm.DB {
	return q.db
}

func (q *GORMQuery[T]) with(tx *gorm.DB) *GORMQuery[T] {
	c := *q
	c.db = tx.Session(&gorm.Session{})

	return &c
}

// clone returns a query with a private copy of the statement, safe to edit
// in place.
func (q *GORMQuery[T]) clone() *gorm.DB {
	return q.db.Clauses()
}

// PrimaryKeyName - implements Schema.
func (q *GORMQuery[T]) PrimaryKeyName() string {
	return q.schema.PrioritizedPrimaryField.DBName
}

// TableQualifiedName - implements Schema.
func (q *GORMQuery[T]) TableQualifiedName(attribute string) string {
	if strings.Contains(attribute, ".") {
		return attribute
	}

	return q.table + "." + attribute
}

// AttributeType - implements Schema. Attributes of other tables are reported
// as ValueTypeOther.
func (q *GORMQuery[T]) AttributeType(attribute string) ValueType {
	column := attribute
	if idx := strings.LastIndex(attribute, "."); idx != -1 {
		if unquoteIdentifier(attribute[:idx]) != q.table {
			return ValueTypeOther
		}
		column = attribute[idx+1:]
	}

	field := q.schema.LookUpField(unquoteIdentifier(column))
	if field == nil {
		return ValueTypeOther
	}

	switch {
	case field.PrimaryKey && (field.DataType == schema.Int || field.DataType == schema.Uint):
		return ValueTypePrimaryKeyInteger
	case field.DataType == schema.Time:
		return ValueTypeDatetime
	default:
		return ValueTypeOther
	}
}

func unquoteIdentifier(s string) string {
	return strings.Trim(s, "`\"'")
}

// OrderClauses - implements Queryable. Raw gorm orderings (db.Order("...")) are
// reported as text clauses, structured columns as column clauses.
func (q *GORMQuery[T]) OrderClauses() []OrderClause {
	c, ok := q.db.Statement.Clauses["ORDER BY"]
	if !ok || c.Expression == nil {
		return nil
	}

	orderBy, ok := c.Expression.(clause.OrderBy)
	if !ok {
		return []OrderClause{ExpressionOrder(fmt.Sprintf("%v", c.Expression))}
	}

	if orderBy.Expression != nil {
		sql := fmt.Sprintf("%v", orderBy.Expression)
		if expr, ok := orderBy.Expression.(clause.Expr); ok {
			sql = expr.SQL
		}

		return []OrderClause{ExpressionOrder(sql)}
	}

	return lo.Map(orderBy.Columns, func(col clause.OrderByColumn, _ int) OrderClause {
		if col.Column.Raw {
			return TextOrder(col.Column.Name + lo.Ternary(col.Desc, " "+string(DirectionDESC), ""))
		}

		name := lo.Ternary(col.Column.Name == clause.PrimaryKey, q.PrimaryKeyName(), col.Column.Name)
		table := lo.Ternary(col.Column.Table == clause.CurrentTable, q.table, col.Column.Table)

		return ColumnOrder(table, name, col.Desc)
	})
}

// WithOrder - implements Queryable. Any previous ordering is discarded.
func (q *GORMQuery[T]) WithOrder(spec OrderSpec) Queryable[T] {
	return q.with(q.db.Clauses(clause.OrderBy{
		Columns: []clause.OrderByColumn{{
			Column:  clause.Column{Name: spec.ToSQL(), Raw: true},
			Reorder: true,
		}},
	}))
}

// WithPredicate - implements Queryable.
func (q *GORMQuery[T]) WithPredicate(op Operator, columns []string, values []any) Queryable[T] {
	var exp clause.Expression
	if q.expanded {
		exp = expandRowComparison(op, columns, values).toGORMExpression()
	} else {
		exp = rowComparison(op, columns, values)
	}

	if exp == nil {
		return q
	}

	return q.with(q.db.Clauses(exp))
}

// rowComparison renders (c1, c2) op (?, ?), or c1 op ? for a single column.
func rowComparison(op Operator, columns []string, values []any) clause.Expression {
	switch len(columns) {
	case 0:
		return nil
	case 1:
		return clause.Expr{SQL: fmt.Sprintf("%s %s ?", columns[0], op), Vars: []any{values[0]}}
	default:
		return clause.Expr{
			SQL:  fmt.Sprintf("(%s) %s ?", strings.Join(columns, ", "), op),
			Vars: []any{values},
		}
	}
}

func (q *GORMQuery[T]) limitClause() clause.Limit {
	c, ok := q.db.Statement.Clauses["LIMIT"]
	if !ok {
		return clause.Limit{}
	}

	limit, _ := c.Expression.(clause.Limit)

	return limit
}

// withLimitClause replaces the LIMIT clause as a whole. gorm's Limit/Offset
// merge with the previous values and can't set a limit or offset back to 0.
func (q *GORMQuery[T]) withLimitClause(limit clause.Limit) *GORMQuery[T] {
	tx := q.clone()
	tx.Statement.Clauses["LIMIT"] = clause.Clause{Expression: limit}

	return q.with(tx)
}

// WithLimit - implements Queryable.
func (q *GORMQuery[T]) WithLimit(n int) Queryable[T] {
	limit := q.limitClause()
	limit.Limit = lo.ToPtr(n)

	return q.withLimitClause(limit)
}

// WithOffset - implements Queryable.
func (q *GORMQuery[T]) WithOffset(n int) Queryable[T] {
	limit := q.limitClause()
	limit.Offset = n

	return q.withLimitClause(limit)
}

// CurrentLimit - implements Queryable. A negative gorm limit means none.
func (q *GORMQuery[T]) CurrentLimit() (int, bool) {
	limit := q.limitClause()
	if limit.Limit == nil || *limit.Limit < 0 {
		return 0, false
	}

	return *limit.Limit, true
}

// CurrentOffset - implements Queryable.
func (q *GORMQuery[T]) CurrentOffset() (int, bool) {
	limit := q.limitClause()
	if limit.Offset <= 0 {
		return 0, false
	}

	return limit.Offset, true
}

// withoutPreloads returns a clone of the query that won't run preloads, for
// queries that don't materialize records.
func (q *GORMQuery[T]) withoutPreloads() *gorm.DB {
	tx := q.clone()
	tx.Statement.Preloads = map[string][]interface{}{}

	return tx.Session(&gorm.Session{})
}

// Count - implements Queryable. A limited or offset relation is counted
// through a subquery so the window is honored.
func (q *GORMQuery[T]) Count() (int, error) {
	var count int64

	_, limited := q.CurrentLimit()
	_, offset := q.CurrentOffset()

	tx := q.withoutPreloads()
	if limited || offset {
		sub := tx.Select(q.TableQualifiedName(q.PrimaryKeyName()))
		tx = q.db.Session(&gorm.Session{NewDB: true}).Table("(?) AS counted", sub)
	}

	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}

	return int(count), nil
}

// FetchByID - implements Queryable. The lookup keeps the relation's joins and
// conditions but drops its ordering, window and preloads.
func (q *GORMQuery[T]) FetchByID(id string, keys []OrderKey) (map[string]any, bool, error) {
	value, err := q.parseIdentifier(id)
	if err != nil {
		// An identifier that can't be a primary key matches no record.
		return nil, false, nil
	}

	tx := q.clone()
	delete(tx.Statement.Clauses, "ORDER BY")
	delete(tx.Statement.Clauses, "LIMIT")
	tx.Statement.Preloads = map[string][]interface{}{}

	row := map[string]any{}
	res := tx.Session(&gorm.Session{}).
		Select(lo.Map(keys, func(k OrderKey, _ int) string { return k.SelectSQL() })).
		Where(clause.Eq{
			Column: clause.Column{Name: q.TableQualifiedName(q.PrimaryKeyName()), Raw: true},
			Value:  value,
		}).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}

	return row, res.RowsAffected > 0, nil
}

func (q *GORMQuery[T]) parseIdentifier(id string) (any, error) {
	switch q.schema.PrioritizedPrimaryField.DataType {
	case schema.Int:
		return strconv.ParseInt(id, 10, 64)
	case schema.Uint:
		return strconv.ParseUint(id, 10, 64)
	default:
		return id, nil
	}
}

// Execute - implements Queryable.
func (q *GORMQuery[T]) Execute() ([]T, error) {
	var records []T
	if err := q.db.Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

// IdentifierOf - implements Queryable.
func (q *GORMQuery[T]) IdentifierOf(record T) (string, error) {
	rv := reflect.ValueOf(record)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "", errors.New("record is nil")
	}

	value, zero := q.schema.PrioritizedPrimaryField.ValueOf(context.Background(), reflect.Indirect(rv))
	if zero {
		return "", fmt.Errorf("record has no '%s' value", q.PrimaryKeyName())
	}

	return fmt.Sprint(value), nil
}

var _ Queryable[struct{ ID int }] = (*GORMQuery[struct{ ID int }])(nil)
