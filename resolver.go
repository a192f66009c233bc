package relaypager

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// BoundaryTuple holds the ordering key values of the record a cursor refers
// to, one per OrderKey and in OrderSpec order.
type BoundaryTuple []any

// CursorResolver turns cursor tokens into boundary tuples.
//
// A token never embeds order values: it only identifies a record, and the
// record's key tuple is looked up at resolution time. This costs one point
// lookup per cursor but keeps tokens valid across ordering changes.
type CursorResolver[T any] struct {
	query Queryable[T]
	codec Codec
	log   *zap.Logger
}

// NewCursorResolver returns a resolver looking cursors up in query.
func NewCursorResolver[T any](query Queryable[T], codec Codec) *CursorResolver[T] {
	return &CursorResolver[T]{
		query: query,
		codec: codec,
		log:   zap.NewNop(),
	}
}

// WithLogger sets the logger debug events are written to.
func (r *CursorResolver[T]) WithLogger(log *zap.Logger) *CursorResolver[T] {
	r.log = log

	return r
}

// Resolve decodes token and fetches the key tuple of the referenced record.
//
// A token decoding to a blank identifier resolves to a nil tuple, meaning "no
// boundary". A malformed token fails with *InvalidCursorError and a token
// referring to a missing record with *CursorNotFoundError.
func (r *CursorResolver[T]) Resolve(token string, spec OrderSpec) (BoundaryTuple, error) {
	id, err := decodeCursor(r.codec, token)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(id) == "" {
		return nil, nil
	}

	row, found, err := r.query.FetchByID(id, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cursor record: %w", err)
	}
	if !found {
		return nil, &CursorNotFoundError{Cursor: token}
	}

	tuple := make(BoundaryTuple, 0, len(spec))
	for _, key := range spec {
		value, ok := row[key.SelectAlias()]
		if !ok {
			return nil, fmt.Errorf("cursor record lacks ordering attribute '%s'", key.Attribute)
		}

		tuple = append(tuple, value)
	}

	r.log.Debug("resolved cursor", zap.String("cursor", token), zap.String("id", id), zap.Any("tuple", tuple))

	return tuple, nil
}

// Encode returns the token for a record identifier.
func (r *CursorResolver[T]) Encode(id string) string {
	return r.codec.Encode(id)
}
