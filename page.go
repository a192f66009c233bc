package relaypager

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Args are the pagination arguments of a single request. Intended for API
// payloads; inline it into request structs:
//
//	type ListUsersRequest struct {
//	    Paging relaypager.Args `json:",inline"`
//	}
type Args struct {
	// First - number of records to take from the start of the window.
	First *int `json:"first,omitempty"`
	// Last - number of records to take from the end of the window.
	Last *int `json:"last,omitempty"`
	// After - cursor of the record the window starts after. Empty means none.
	After string `json:"after,omitempty"`
	// Before - cursor of the record the window ends before. Empty means none.
	Before string `json:"before,omitempty"`
}

// Option configures a Page.
type Option func(*pageOptions)

type pageOptions struct {
	cfg *Configuration
}

// WithConfiguration makes the page use cfg instead of CurrentConfiguration().
func WithConfiguration(cfg *Configuration) Option {
	return func(o *pageOptions) {
		o.cfg = cfg
	}
}

// PageInfo is the Relay page metadata.
type PageInfo struct {
	HasPreviousPage bool    `json:"hasPreviousPage"`
	HasNextPage     bool    `json:"hasNextPage"`
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
}

// Edge pairs a record with its cursor.
type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

// Connection is a page rendered as a Relay connection.
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"pageInfo"`
}

// Page coordinates the pagination of one request.
//
// The ordering is finalized by NewPage. Everything else (cursor resolution,
// slicing, limiting, fetching, page info) is derived lazily, at most once per
// Page: a failed step keeps returning its error without issuing queries again.
// A Page is not safe for concurrent use.
type Page[T any] struct {
	query    Queryable[T]
	first    *int
	last     *int
	after    string
	before   string
	codec    Codec
	log      *zap.Logger
	resolver *CursorResolver[T]

	orderSpec OrderSpec

	afterBoundary  once[BoundaryTuple]
	beforeBoundary once[BoundaryTuple]
	sliced         once[Queryable[T]]
	limited        once[Queryable[T]]
	records        once[[]T]
	previousPage   once[bool]
	nextPage       once[bool]
}

type once[V any] struct {
	done  bool
	value V
	err   error
}

func (o *once[V]) get(fn func() (V, error)) (V, error) {
	if !o.done {
		o.value, o.err = fn()
		o.done = true
	}

	return o.value, o.err
}

// NewPage validates the ordering of query and prepares the page. It fails with
// ErrConflictingOrders or *OrderValueError before any query is executed.
func NewPage[T any](query Queryable[T], args Args, opts ...Option) (*Page[T], error) {
	o := pageOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := lo.Ternary(o.cfg == nil, CurrentConfiguration(), o.cfg)

	log := cfg.logger()
	orderSpec, err := newOrderSpec(query, query.OrderClauses(), log)
	if err != nil {
		return nil, err
	}

	first, last := normalizeFirstLast(args.First, args.Last, cfg)

	return &Page[T]{
		query:     query,
		first:     first,
		last:      last,
		after:     args.After,
		before:    args.Before,
		codec:     cfg.encoder(),
		log:       log,
		resolver:  NewCursorResolver(query, cfg.encoder()).WithLogger(log),
		orderSpec: orderSpec,
	}, nil
}

// OrderSpec returns the finalized ordering.
func (p *Page[T]) OrderSpec() OrderSpec {
	return p.orderSpec
}

// First returns the effective `first`, after clamping and defaults.
func (p *Page[T]) First() *int {
	return p.first
}

// Last returns the effective `last`, after clamping.
func (p *Page[T]) Last() *int {
	return p.last
}

// Records returns the records of the page.
func (p *Page[T]) Records() ([]T, error) {
	return p.records.get(func() ([]T, error) {
		limited, err := p.limitedQuery()
		if err != nil {
			return nil, err
		}

		records, err := limited.Execute()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page records: %w", err)
		}

		return records, nil
	})
}

// PreviousPage reports whether records precede the page: always when an
// `after` cursor was given, otherwise when `last` skipped some records.
func (p *Page[T]) PreviousPage() (bool, error) {
	return p.previousPage.get(func() (bool, error) {
		after, err := p.afterTuple()
		if err != nil {
			return false, err
		}

		if after != nil {
			return true, nil
		}

		if p.last == nil {
			return false, nil
		}

		limited, err := p.limitedQuery()
		if err != nil {
			return false, err
		}
		offset, _ := limited.CurrentOffset()

		return offset > 0, nil
	})
}

// NextPage reports whether records follow the page: always when a `before`
// cursor was given, otherwise when a probe for `first`+1 records on the sliced
// relation finds them all.
func (p *Page[T]) NextPage() (bool, error) {
	return p.nextPage.get(func() (bool, error) {
		before, err := p.beforeTuple()
		if err != nil {
			return false, err
		}

		if before != nil {
			return true, nil
		}

		if p.first == nil {
			return false, nil
		}

		sliced, err := p.slicedQuery()
		if err != nil {
			return false, err
		}

		probe := *p.first + 1
		count, err := sliced.WithLimit(probe).Count()
		if err != nil {
			return false, fmt.Errorf("failed to probe next page: %w", err)
		}
		p.log.Debug("probed next page", zap.Int("limit", probe), zap.Int("count", count))

		return count == probe, nil
	})
}

// CursorFor returns the cursor of record.
func (p *Page[T]) CursorFor(record T) (string, error) {
	id, err := p.query.IdentifierOf(record)
	if err != nil {
		return "", fmt.Errorf("cannot build cursor: %w", err)
	}

	return p.codec.Encode(id), nil
}

// FirstCursor returns the cursor of the first record, nil for an empty page.
func (p *Page[T]) FirstCursor() (*string, error) {
	return p.edgeCursor(false)
}

// LastCursor returns the cursor of the last record, nil for an empty page.
func (p *Page[T]) LastCursor() (*string, error) {
	return p.edgeCursor(true)
}

func (p *Page[T]) edgeCursor(last bool) (*string, error) {
	records, err := p.Records()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	cursor, err := p.CursorFor(lo.Ternary(last, lo.LastOrEmpty(records), records[0]))
	if err != nil {
		return nil, err
	}

	return &cursor, nil
}

// Info returns the page metadata.
func (p *Page[T]) Info() (PageInfo, error) {
	var (
		info PageInfo
		err  error
	)

	if info.HasPreviousPage, err = p.PreviousPage(); err != nil {
		return PageInfo{}, err
	}
	if info.HasNextPage, err = p.NextPage(); err != nil {
		return PageInfo{}, err
	}
	if info.StartCursor, err = p.FirstCursor(); err != nil {
		return PageInfo{}, err
	}
	if info.EndCursor, err = p.LastCursor(); err != nil {
		return PageInfo{}, err
	}

	return info, nil
}

// Edges returns the records paired with their cursors.
func (p *Page[T]) Edges() ([]Edge[T], error) {
	records, err := p.Records()
	if err != nil {
		return nil, err
	}

	edges := make([]Edge[T], 0, len(records))
	for _, record := range records {
		cursor, err := p.CursorFor(record)
		if err != nil {
			return nil, err
		}

		edges = append(edges, Edge[T]{Node: record, Cursor: cursor})
	}

	return edges, nil
}

// Connection returns the page as a Relay connection.
func (p *Page[T]) Connection() (Connection[T], error) {
	edges, err := p.Edges()
	if err != nil {
		return Connection[T]{}, err
	}

	info, err := p.Info()
	if err != nil {
		return Connection[T]{}, err
	}

	return Connection[T]{Edges: edges, PageInfo: info}, nil
}

func (p *Page[T]) afterTuple() (BoundaryTuple, error) {
	return p.afterBoundary.get(func() (BoundaryTuple, error) {
		return p.resolve(p.after)
	})
}

func (p *Page[T]) beforeTuple() (BoundaryTuple, error) {
	return p.beforeBoundary.get(func() (BoundaryTuple, error) {
		return p.resolve(p.before)
	})
}

func (p *Page[T]) resolve(token string) (BoundaryTuple, error) {
	if token == "" {
		return nil, nil
	}

	return p.resolver.Resolve(token, p.orderSpec)
}

func (p *Page[T]) slicedQuery() (Queryable[T], error) {
	return p.sliced.get(func() (Queryable[T], error) {
		after, err := p.afterTuple()
		if err != nil {
			return nil, err
		}

		before, err := p.beforeTuple()
		if err != nil {
			return nil, err
		}

		ordered := p.query.WithOrder(p.orderSpec)

		return NewSlicer[T](p.orderSpec).Apply(ordered, after, before), nil
	})
}

func (p *Page[T]) limitedQuery() (Queryable[T], error) {
	return p.limited.get(func() (Queryable[T], error) {
		sliced, err := p.slicedQuery()
		if err != nil {
			return nil, err
		}

		return NewLimiter[T](p.first, p.last).WithLogger(p.log).Apply(sliced)
	})
}
