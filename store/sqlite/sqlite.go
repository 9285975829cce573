/*
Package sqlite opens the provisioning store on SQLite.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/npl.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := provision.NewPeriodRunner(store, store, log)

SEE ALSO:
  - store/sqlstore: Queries and schema
  - store/postgres: PostgreSQL backend
*/
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/npl-provision/store/sqlstore"
)

// InMemory is the path of a private in-memory database.
const InMemory = ":memory:"

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == InMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	return sqlstore.Open(db, sqlstore.SQLite)
}
