package sqldb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

// sqliteLowerFunc folds case with Go's Unicode tables. The built-in LOWER only
// handles ASCII.
const sqliteLowerFunc = "unicode_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower); err != nil {
		panic(fmt.Sprintf("register %s: %v", sqliteLowerFunc, err))
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Driver names a supported relational backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DB bundles the connection pool with the goqu dialect matching its driver.
type DB struct {
	*sqlx.DB
	driver  Driver
	dialect goqu.DialectWrapper
}

// Open connects to the configured backend. For sqlite the dsn is a file path
// whose parent directory is created when missing.
func Open(driver, dsn string) (*DB, error) {
	switch Driver(driver) {
	case DriverSQLite, "":
		return openSQLite(dsn)
	case DriverPostgres:
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// a single connection keeps the foreign_keys pragma in effect for every statement
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{DB: db, driver: DriverSQLite, dialect: goqu.Dialect("sqlite3")}, nil
}

func openPostgres(dsn string) (*DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{DB: db, driver: DriverPostgres, dialect: goqu.Dialect("postgres")}, nil
}

// Driver reports the backend in use.
func (db *DB) Driver() Driver {
	return db.driver
}

// execSchema runs the DDL statements for the active driver one by one.
func (db *DB) execSchema(ctx context.Context, schema map[Driver][]string) error {
	for _, stmt := range schema[db.driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	return nil
}

// insert adds a row and returns its generated id. pgx does not implement
// LastInsertId, so postgres uses RETURNING instead.
func (db *DB) insert(ctx context.Context, table string, record goqu.Record) (int64, error) {
	ds := db.dialect.Insert(table).Rows(record).Prepared(true)

	if db.driver == DriverPostgres {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, fmt.Errorf("build insert %s: %w", table, err)
		}
		var id int64
		if err := db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, classify(err)
		}
		return id, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert %s: %w", table, err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s last insert id: %w", table, err)
	}
	return id, nil
}

// exec runs a prepared dataset and returns the number of affected rows.
func (db *DB) exec(ctx context.Context, ds interface {
	ToSQL() (string, []interface{}, error)
}) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return aff, nil
}

func (db *DB) get(ctx context.Context, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	if err := db.GetContext(ctx, dest, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (db *DB) selectAll(ctx context.Context, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	if err := db.SelectContext(ctx, dest, query, args...); err != nil {
		return classify(err)
	}
	return nil
}
