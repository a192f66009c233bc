package relaypager

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGORMMySQLMock() (string, *gorm.DB, sqlmock.Sqlmock, error) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		return "", nil, nil, err
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      mockDB,
		SkipInitializeWithVersion: true,
	})

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return "", nil, nil, err
	}

	return "mysql", db.Debug(), mock, nil
}

func newGORMPostgresMock() (string, *gorm.DB, sqlmock.Sqlmock, error) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		return "", nil, nil, err
	}

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return "", nil, nil, err
	}

	return "postgres", db.Debug(), mock, nil
}

var sqlMockFnList = []func() (string, *gorm.DB, sqlmock.Sqlmock, error){
	newGORMMySQLMock,
	newGORMPostgresMock,
}

type testUser struct {
	ID        uint       `gorm:"primaryKey"`
	Name      string     `gorm:"not null"`
	CreatedAt time.Time  `gorm:"not null"`
	Books     []testBook `gorm:"foreignKey:UserID"`
}

func (testUser) TableName() string { return "users" }

type testBook struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (testBook) TableName() string { return "books" }

var _baseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// newSQLiteDB opens a private in-memory database seeded with users 1..5.
// Users 2 and 3 share created_at, user 5 is the oldest. Each user has one
// book; the books are created in reverse user order.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&testUser{}, &testBook{}))

	users := []testUser{
		{ID: 1, Name: "alice", CreatedAt: _baseTime.Add(1 * time.Hour)},
		{ID: 2, Name: "bob", CreatedAt: _baseTime.Add(2 * time.Hour)},
		{ID: 3, Name: "carol", CreatedAt: _baseTime.Add(2 * time.Hour)},
		{ID: 4, Name: "dave", CreatedAt: _baseTime.Add(3 * time.Hour)},
		{ID: 5, Name: "erin", CreatedAt: _baseTime},
	}
	require.NoError(t, db.Create(&users).Error)

	books := make([]testBook, 0, len(users))
	for i, u := range users {
		books = append(books, testBook{
			ID:        u.ID,
			UserID:    u.ID,
			Title:     "book of " + u.Name,
			CreatedAt: _baseTime.Add(time.Duration(len(users)-i) * time.Hour),
		})
	}
	require.NoError(t, db.Create(&books).Error)

	return db
}

func userIDs(users []testUser) []uint {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	return ids
}

func intPtr(v int) *int {
	return &v
}
