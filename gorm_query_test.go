package relaypager

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func mustGORMQuery(t *testing.T, db *gorm.DB) *GORMQuery[testUser] {
	t.Helper()

	q, err := NewGORMQuery[testUser](db)
	require.NoError(t, err)

	return q
}

func mustOrderSpec(t *testing.T, q Queryable[testUser]) OrderSpec {
	t.Helper()

	spec, err := NewOrderSpec(q, q.OrderClauses())
	require.NoError(t, err)

	return spec
}

func Test_GORMQuery_Execute(t *testing.T) {
	createdAt := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		order    string
		expanded bool
		op       func(spec OrderSpec) Operator
		values   []any
		limit    int
		wantSQL  string
		wantArgs []driver.Value
	}{
		{
			name:     "row comparison",
			order:    "created_at asc, id asc",
			op:       func(spec OrderSpec) Operator { return spec.Direction().AfterOperator() },
			values:   []any{createdAt, 3},
			limit:    3,
			wantSQL:  "^SELECT \\* FROM [`'\"]users[`'\"] WHERE \\(users.created_at, users.id\\) > \\((?:\\$\\d|\\?),(?:\\$\\d|\\?)\\) ORDER BY users.created_at ASC, users.id ASC LIMIT 3$",
			wantArgs: []driver.Value{createdAt, 3},
		},
		{
			name:     "single column descending before",
			order:    "id desc",
			op:       func(spec OrderSpec) Operator { return spec.Direction().BeforeOperator() },
			values:   []any{10},
			limit:    2,
			wantSQL:  "^SELECT \\* FROM [`'\"]users[`'\"] WHERE users.id > (?:\\$\\d|\\?) ORDER BY users.id DESC LIMIT 2$",
			wantArgs: []driver.Value{10},
		},
		{
			name:     "expanded comparison",
			order:    "name desc",
			expanded: true,
			op:       func(spec OrderSpec) Operator { return spec.Direction().AfterOperator() },
			values:   []any{"carol", 3},
			limit:    5,
			wantSQL:  "^SELECT \\* FROM [`'\"]users[`'\"] WHERE .*users.name < (?:\\$\\d|\\?) OR .*users.name = (?:\\$\\d|\\?) AND users.id < (?:\\$\\d|\\?).* ORDER BY users.name DESC, users.id DESC LIMIT 5$",
			wantArgs: []driver.Value{"carol", "carol", 3},
		},
	}

	for _, sqlMockFn := range sqlMockFnList {
		for _, tt := range tests {
			dialect, db, dbMock, err := sqlMockFn()
			require.NoError(t, err)

			t.Run(dialect+"/"+tt.name, func(t *testing.T) {
				q := mustGORMQuery(t, db.Model(&testUser{}).Order(tt.order))
				if tt.expanded {
					q = q.WithExpandedPredicates()
				}
				spec := mustOrderSpec(t, q)

				dbMock.ExpectQuery(tt.wantSQL).
					WithArgs(tt.wantArgs...).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
						AddRow(4, "dave", createdAt))

				records, err := q.WithOrder(spec).
					WithPredicate(tt.op(spec), spec.Attributes(), tt.values).
					WithLimit(tt.limit).
					Execute()
				require.NoError(t, err)
				assert.Equal(t, []uint{4}, userIDs(records))
				assert.NoError(t, dbMock.ExpectationsWereMet())
			})
		}
	}
}

func Test_GORMQuery_WithOrder_Replaces(t *testing.T) {
	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		require.NoError(t, err)

		t.Run(dialect, func(t *testing.T) {
			q := mustGORMQuery(t, db.Model(&testUser{}).Order("name desc"))

			dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]users[`'\"] ORDER BY users.id ASC$").
				WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := q.WithOrder(OrderSpec{NewOrderKey(q, "id", DirectionASC)}).Execute()
			require.NoError(t, err)

			// The original ordering is untouched.
			assert.Equal(t, []OrderClause{TextOrder("name desc")}, q.OrderClauses())
			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_GORMQuery_Count(t *testing.T) {
	tests := []struct {
		name    string
		query   func(q *GORMQuery[testUser]) Queryable[testUser]
		wantSQL string
	}{
		{
			name:    "plain",
			query:   func(q *GORMQuery[testUser]) Queryable[testUser] { return q },
			wantSQL: "^SELECT count\\(\\*\\) FROM [`'\"]users[`'\"]$",
		},
		{
			name: "windowed relation is counted through a subquery",
			query: func(q *GORMQuery[testUser]) Queryable[testUser] {
				return q.WithPredicate(OperatorGT, []string{"users.id"}, []any{1}).WithLimit(3).WithOffset(2)
			},
			wantSQL: "^SELECT count\\(\\*\\) FROM \\(SELECT users.id FROM [`'\"]users[`'\"] WHERE users.id > (?:\\$\\d|\\?) LIMIT 3 OFFSET 2\\) AS counted$",
		},
	}

	for _, sqlMockFn := range sqlMockFnList {
		for _, tt := range tests {
			dialect, db, dbMock, err := sqlMockFn()
			require.NoError(t, err)

			t.Run(dialect+"/"+tt.name, func(t *testing.T) {
				q := mustGORMQuery(t, db.Model(&testUser{}))

				dbMock.ExpectQuery(tt.wantSQL).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

				count, err := tt.query(q).Count()
				require.NoError(t, err)
				assert.Equal(t, 2, count)
				assert.NoError(t, dbMock.ExpectationsWereMet())
			})
		}
	}
}

func Test_GORMQuery_FetchByID(t *testing.T) {
	createdAt := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		require.NoError(t, err)

		t.Run(dialect, func(t *testing.T) {
			q := mustGORMQuery(t, db.Model(&testUser{}).
				Joins("JOIN books ON books.user_id = users.id").
				Order("books.created_at desc").
				Limit(10))
			spec := mustOrderSpec(t, q)

			dbMock.ExpectQuery("^SELECT books.created_at AS books_created_at,users.id AS users_id FROM [`'\"]users[`'\"] " +
				"JOIN books ON books.user_id = users.id WHERE users.id = (?:\\$\\d|\\?) LIMIT 1$").
				WithArgs(3).
				WillReturnRows(sqlmock.NewRows([]string{"books_created_at", "users_id"}).AddRow(createdAt, 3))

			row, found, err := q.FetchByID("3", spec)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Contains(t, row, "books_created_at")

			dbMock.ExpectQuery("WHERE users.id = (?:\\$\\d|\\?) LIMIT 1$").
				WithArgs(42).
				WillReturnRows(sqlmock.NewRows([]string{"books_created_at", "users_id"}))

			_, found, err = q.FetchByID("42", spec)
			require.NoError(t, err)
			assert.False(t, found)

			// Not an integer, so it can't identify a record. No query is issued.
			_, found, err = q.FetchByID("abc", spec)
			require.NoError(t, err)
			assert.False(t, found)

			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_GORMQuery_OrderClauses(t *testing.T) {
	_, db, _, err := newGORMMySQLMock()
	require.NoError(t, err)

	tests := []struct {
		name string
		db   *gorm.DB
		want []OrderClause
	}{
		{
			name: "no ordering",
			db:   db.Model(&testUser{}),
		},
		{
			name: "raw strings",
			db:   db.Model(&testUser{}).Order("created_at desc").Order("id desc"),
			want: []OrderClause{TextOrder("created_at desc"), TextOrder("id desc")},
		},
		{
			name: "structured columns",
			db: db.Model(&testUser{}).
				Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}, Desc: true}).
				Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey}, Desc: true}),
			want: []OrderClause{ColumnOrder("", "name", true), ColumnOrder("users", "id", true)},
		},
		{
			name: "raw column with direction flag",
			db:   db.Model(&testUser{}).Order(clause.OrderByColumn{Column: clause.Column{Name: "name", Raw: true}, Desc: true}),
			want: []OrderClause{TextOrder("name DESC")},
		},
		{
			name: "expression",
			db: db.Model(&testUser{}).Clauses(clause.OrderBy{
				Expression: clause.Expr{SQL: "FIELD(id,?)", Vars: []any{[]int{2, 1}}, WithoutParentheses: true},
			}),
			want: []OrderClause{ExpressionOrder("FIELD(id,?)")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustGORMQuery(t, tt.db).OrderClauses())
		})
	}
}

func Test_GORMQuery_Window(t *testing.T) {
	_, db, _, err := newGORMMySQLMock()
	require.NoError(t, err)

	q := mustGORMQuery(t, db.Model(&testUser{}))

	_, ok := q.CurrentLimit()
	assert.False(t, ok)
	_, ok = q.CurrentOffset()
	assert.False(t, ok)

	windowed := q.WithOffset(4).WithLimit(2)
	limit, ok := windowed.CurrentLimit()
	assert.True(t, ok)
	assert.Equal(t, 2, limit)
	offset, ok := windowed.CurrentOffset()
	assert.True(t, ok)
	assert.Equal(t, 4, offset)

	// Offsets can be set back to 0 and limits lowered to 0.
	reset := windowed.WithOffset(0).WithLimit(0)
	_, ok = reset.CurrentOffset()
	assert.False(t, ok)
	limit, ok = reset.CurrentLimit()
	assert.True(t, ok)
	assert.Equal(t, 0, limit)

	// The receiver is never modified.
	_, ok = q.CurrentLimit()
	assert.False(t, ok)

	preset := mustGORMQuery(t, db.Model(&testUser{}).Limit(10).Offset(3))
	limit, _ = preset.CurrentLimit()
	offset, _ = preset.CurrentOffset()
	assert.Equal(t, 10, limit)
	assert.Equal(t, 3, offset)
}

func Test_GORMQuery_Schema(t *testing.T) {
	_, db, _, err := newGORMPostgresMock()
	require.NoError(t, err)

	q := mustGORMQuery(t, db)

	assert.Equal(t, "id", q.PrimaryKeyName())
	assert.Equal(t, "users.name", q.TableQualifiedName("name"))
	assert.Equal(t, "books.title", q.TableQualifiedName("books.title"))

	tests := []struct {
		attribute string
		want      ValueType
	}{
		{"id", ValueTypePrimaryKeyInteger},
		{`"users"."id"`, ValueTypePrimaryKeyInteger},
		{"created_at", ValueTypeDatetime},
		{"users.created_at", ValueTypeDatetime},
		{"name", ValueTypeOther},
		{"books.created_at", ValueTypeOther},
		{"unknown", ValueTypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.attribute, func(t *testing.T) {
			assert.Equal(t, tt.want, q.AttributeType(tt.attribute))
		})
	}
}

func Test_GORMQuery_IdentifierOf(t *testing.T) {
	_, db, _, err := newGORMMySQLMock()
	require.NoError(t, err)

	q := mustGORMQuery(t, db)

	id, err := q.IdentifierOf(testUser{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	_, err = q.IdentifierOf(testUser{})
	assert.Error(t, err)

	pq, err := NewGORMQuery[*testUser](db)
	require.NoError(t, err)

	id, err = pq.IdentifierOf(&testUser{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, "9", id)

	_, err = pq.IdentifierOf(nil)
	assert.Error(t, err)
}

type keylessRecord struct {
	Name string
}

func Test_NewGORMQuery_Errors(t *testing.T) {
	_, err := NewGORMQuery[testUser](nil)
	assert.Error(t, err)

	_, db, _, err := newGORMMySQLMock()
	require.NoError(t, err)

	_, err = NewGORMQuery[keylessRecord](db)
	assert.Error(t, err)
}
