package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Alp4ka/relaypager"
)

// User is the model the demo paginates over.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type options struct {
	first   int
	last    int
	after   string
	before  string
	sort    []string
	config  string
	seed    int
	verbose bool
}

var _sortColumns = relaypager.ColumnMapping{
	"id":         "users.id",
	"name":       "users.name",
	"email":      "users.email",
	"created_at": "users.created_at",
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "relaypage",
		Short: "Paginate a seeded in-memory users table",
		Long: `Seed an in-memory SQLite users table and print one page of it as a
Relay connection.

Examples:
  relaypage --first 3
  relaypage --first 3 --after MTA --sort "created_at desc"
  relaypage --last 2 --before NQ --config relaypager.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.first, "first", -1, "number of records from the start of the window")
	cmd.Flags().IntVar(&opts.last, "last", -1, "number of records from the end of the window")
	cmd.Flags().StringVar(&opts.after, "after", "", "cursor the window starts after")
	cmd.Flags().StringVar(&opts.before, "before", "", "cursor the window ends before")
	cmd.Flags().StringSliceVar(&opts.sort, "sort", nil, "ordering, e.g. \"created_at desc\" (repeatable)")
	cmd.Flags().StringVar(&opts.config, "config", "", "path to a YAML configuration file")
	cmd.Flags().IntVar(&opts.seed, "seed", 10, "number of users to seed")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log issued queries")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	log := zap.NewNop()
	if opts.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = log.Sync() }()
	}

	cfg := relaypager.NewConfiguration()
	if opts.config != "" {
		data, err := os.ReadFile(opts.config)
		if err != nil {
			return fmt.Errorf("failed to read configuration: %w", err)
		}

		if cfg, err = relaypager.LoadConfiguration(data); err != nil {
			return err
		}
	}
	cfg.Logger = log

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	// Every connection to an in-memory database sees a fresh one.
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	defer func() { _ = sqlDB.Close() }()

	if opts.verbose {
		db = db.Debug()
	}

	if err = seed(db, opts.seed); err != nil {
		return err
	}

	sort, err := relaypager.ParseSort(opts.sort, _sortColumns)
	if err != nil {
		return err
	}
	sort = withPrimaryKey(sort)

	page, err := relaypager.Paginate[User](relaypager.ApplySort(db.Model(&User{}), sort), relaypager.Args{
		First:  lo.Ternary(opts.first >= 0, lo.ToPtr(opts.first), nil),
		Last:   lo.Ternary(opts.last >= 0, lo.ToPtr(opts.last), nil),
		After:  opts.after,
		Before: opts.before,
	}, relaypager.WithConfiguration(cfg))
	if err != nil {
		return err
	}

	conn, err := page.Connection()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(conn)
}

// withPrimaryKey ends the ordering with users.id in the direction of the last
// clause. Seeded creation times tie, and the pager treats a timestamp
// ordering as total.
func withPrimaryKey(sort []relaypager.OrderClause) []relaypager.OrderClause {
	if len(sort) == 0 {
		return sort
	}

	pk := _sortColumns["id"]
	if lo.ContainsBy(sort, func(c relaypager.OrderClause) bool { return strings.HasPrefix(c.String(), pk+" ") }) {
		return sort
	}

	direction := relaypager.DirectionASC
	if strings.HasSuffix(sort[len(sort)-1].String(), " "+string(relaypager.DirectionDESC)) {
		direction = relaypager.DirectionDESC
	}

	return append(sort, relaypager.TextOrder(fmt.Sprintf("%s %s", pk, direction)))
}

func seed(db *gorm.DB, n int) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	users := lo.Times(n, func(i int) User {
		return User{
			Name:  fmt.Sprintf("user-%02d", i+1),
			Email: fmt.Sprintf("user-%02d@example.com", i+1),
			// Every third user shares its creation time with the previous one.
			CreatedAt: base.Add(time.Duration(i-i/3) * time.Hour),
		}
	})
	if len(users) == 0 {
		return nil
	}

	if err := db.Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
