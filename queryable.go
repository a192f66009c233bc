package relaypager

// Queryable is an ordered, filterable collection of records of type T. Every
// method deriving a new Queryable leaves the receiver untouched.
//
// GORMQuery is the implementation shipped with this package.
type Queryable[T any] interface {
	Schema

	// OrderClauses returns the ordering currently applied, in order.
	OrderClauses() []OrderClause
	// WithOrder replaces the ordering.
	WithOrder(spec OrderSpec) Queryable[T]
	// WithPredicate keeps the records whose composite key (columns...) compares
	// to the row (values...) with op. Comparison is row-wise and lexicographic.
	WithPredicate(op Operator, columns []string, values []any) Queryable[T]
	// WithLimit replaces the limit, keeping the offset.
	WithLimit(n int) Queryable[T]
	// WithOffset replaces the offset, keeping the limit.
	WithOffset(n int) Queryable[T]
	CurrentLimit() (int, bool)
	CurrentOffset() (int, bool)

	// Count returns the number of records the relation yields, honoring the
	// current limit and offset.
	Count() (int, error)
	// FetchByID looks up the record identified by id under the relation's
	// joins, selecting every key as key.SelectAlias(). found is false when no
	// such record exists.
	FetchByID(id string, keys []OrderKey) (row map[string]any, found bool, err error)
	// Execute materializes the relation.
	Execute() ([]T, error)
	// IdentifierOf returns the string form of record's primary key.
	IdentifierOf(record T) (string, error)
}
