// Package relaypager provides Relay-style cursor pagination for GORM.
//
// Overview
//
// A Page is built from an ordered query and the four Relay arguments
// (first, last, after, before). Cursors are opaque tokens that only identify
// a record: the record's ordering values are looked up when the cursor is
// used, and the query is narrowed with a keyset predicate
//
//	(users.created_at, users.id) > (?, ?)
//
// rather than an offset, so pages stay stable while records are inserted.
//
// Key concepts
//   - OrderSpec: the normalized ordering. A primary key tie-breaker is
//     appended when the ordering isn't total. Mixed directions are rejected.
//   - CursorResolver: decodes a cursor and fetches its boundary tuple.
//   - Slicer: applies the after/before boundaries.
//   - Limiter: applies first/last as a limit/offset window.
//   - Page: ties the above together and exposes records, cursors and
//     PageInfo.
//
// Usage
//
//	page, err := relaypager.Paginate[User](db.Order("created_at DESC, id DESC"), relaypager.Args{
//	    First: lo.ToPtr(10),
//	    After: req.After,
//	})
//	if err != nil {
//	    return err
//	}
//
//	conn, err := page.Connection()
package relaypager
