package relaypager

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// NormalizePageSize clamps a requested page size to [0, maximum]. A nil
// maximum means no upper bound.
func NormalizePageSize(size int, maximum *int) int {
	size = max(size, 0)
	if maximum != nil {
		size = min(size, max(*maximum, 0))
	}

	return size
}

// normalizeFirstLast applies the configured page sizes to the requested
// counts. The default page size (falling back to the maximum) stands in for
// `first` only when neither `first` nor `last` were given.
func normalizeFirstLast(first, last *int, cfg *Configuration) (*int, *int) {
	var maximum, fallback *int
	if cfg != nil {
		maximum = cfg.MaximumPageSize
		fallback = lo.Ternary(cfg.DefaultPageSize != nil, cfg.DefaultPageSize, cfg.MaximumPageSize)
	}

	if first == nil && last == nil && fallback != nil {
		return lo.ToPtr(NormalizePageSize(*fallback, maximum)), nil
	}

	if first != nil {
		first = lo.ToPtr(NormalizePageSize(*first, maximum))
	}
	if last != nil {
		last = lo.ToPtr(NormalizePageSize(*last, maximum))
	}

	return first, last
}

// Limiter translates `first` and `last` into a limit/offset window. A limit
// already present on the relation is never loosened.
type Limiter[T any] struct {
	first *int
	last  *int
	log   *zap.Logger
}

// NewLimiter returns a Limiter for the given first and last arguments.
func NewLimiter[T any](first, last *int) Limiter[T] {
	return Limiter[T]{first: first, last: last, log: zap.NewNop()}
}

// WithLogger sets the logger debug events are written to.
func (l Limiter[T]) WithLogger(log *zap.Logger) Limiter[T] {
	l.log = log

	return l
}

// Apply limits query. It issues a count query only when `last` is requested
// and no limit is in effect.
func (l Limiter[T]) Apply(query Queryable[T]) (Queryable[T], error) {
	if l.first != nil {
		query = l.applyFirst(query)
	}

	if l.last != nil {
		return l.applyLast(query)
	}

	return query, nil
}

// applyFirst applies `first` if it is stricter than the limit already applied.
func (l Limiter[T]) applyFirst(query Queryable[T]) Queryable[T] {
	previousLimit, ok := query.CurrentLimit()
	if !ok || previousLimit > *l.first {
		return query.WithLimit(*l.first)
	}

	return query
}

// applyLast takes the trailing `last` records of the current window.
func (l Limiter[T]) applyLast(query Queryable[T]) (Queryable[T], error) {
	last := *l.last
	previousOffset, _ := query.CurrentOffset()

	previousLimit, ok := query.CurrentLimit()
	if ok {
		// `last` can't be more restrictive than what remains.
		if last > previousLimit {
			return query, nil
		}

		offset := max(previousOffset+previousLimit-last, 0)

		return query.WithOffset(offset).WithLimit(last), nil
	}

	count, err := query.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count records for last: %w", err)
	}
	l.log.Debug("counted records for last", zap.Int("count", count), zap.Int("last", last))

	offset := max(previousOffset+count-min(last, count), 0)

	return query.WithOffset(offset).WithLimit(last), nil
}
