package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// DB feeds the ledger's postgres snapshot store. The pool stays small:
// the snapshotter is the only steady writer.
var DB *sql.DB

func InitPostgres(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	DB.SetMaxOpenConns(8)
	DB.SetConnMaxIdleTime(5 * time.Minute)
	return DB.Ping()
}
