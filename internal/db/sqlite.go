//go:build !without_sqlite

package db

import (
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSqlite opens a WAL-mode sqlite database with the sqlite-vec extension
// auto-loaded on every new connection.
func OpenSqlite(dbPath string) (*gorm.DB, error) {
	sqlite_vec.Auto()

	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", dbPath)),
		&gorm.Config{TranslateError: true},
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return db, nil
}
