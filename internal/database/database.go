package database

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"chatrelay/internal/config"
)

// Init opens the database selected by cfg.DBDriver and applies the schema.
func Init(cfg config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
		return open("mysql", dsn)
	case "sqlite3":
		return OpenSQLite(cfg.DBPath)
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// OpenSQLite opens (creating if needed) an SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

func open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	jww.INFO.Printf("✅ Database connection established (%s)", driver)
	return db, nil
}

func migrate(db *sql.DB, driver string) error {
	queries := mysqlSchema
	if driver == "sqlite3" {
		queries = sqliteSchema
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return errors.Wrapf(err, "database.migrate: %.40q", query)
		}
	}
	return nil
}

// IsDuplicate reports whether err is a unique-constraint violation from either driver.
func IsDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
