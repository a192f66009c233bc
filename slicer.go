package relaypager

// Slicer narrows a relation to the open interval between an `after` and a
// `before` boundary.
//
// Boundaries are compared against the composite key of every OrderSpec
// attribute at once, so ties on a leading column are settled by the following
// ones. The operator always points the way pagination moves: `after` selects
// the records following the boundary and `before` the ones preceding it,
// whatever the absolute column direction.
type Slicer[T any] struct {
	spec OrderSpec
}

// NewSlicer returns a Slicer narrowing queries ordered by spec.
func NewSlicer[T any](spec OrderSpec) Slicer[T] {
	return Slicer[T]{spec: spec}
}

// Apply bounds query by after and before. A nil boundary is ignored. Both
// predicates compose with AND; an inverted range yields no records.
func (s Slicer[T]) Apply(query Queryable[T], after, before BoundaryTuple) Queryable[T] {
	direction := s.spec.Direction()

	if after != nil {
		query = query.WithPredicate(direction.AfterOperator(), s.spec.Attributes(), after)
	}

	if before != nil {
		query = query.WithPredicate(direction.BeforeOperator(), s.spec.Attributes(), before)
	}

	return query
}
