package database

import (
	"errors"
	"strconv"

	"github.com/lib/pq"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect は接続先データベースの種類を表す。
// SQLの差異（プレースホルダ記法、一意制約違反の判定）を吸収する。
type Dialect string

const (
	// DialectPostgres はPostgreSQL（lib/pq）を表す。
	DialectPostgres Dialect = "postgres"
	// DialectSQLite はSQLite（modernc.org/sqlite）を表す。
	DialectSQLite Dialect = "sqlite"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// DriverName はdatabase/sqlに登録されたドライバ名を返す。
func (d Dialect) DriverName() string {
	return string(d)
}

// Placeholder はn番目（1始まり）のバインドパラメータの記法を返す。
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// IsUniqueViolation はエラーが一意制約違反によるものかを判定する。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
