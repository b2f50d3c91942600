// Package pgtest starts a throwaway PostgreSQL for repository tests.
package pgtest

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/fekuna/omnipos-warehouse-service/internal/database"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jmoiron/sqlx"
)

const (
	user     = "postgres"
	password = "postgres"
	dbName   = "warehouse_test"
)

// Open starts an embedded server on a free port, applies the schema and
// returns a pool. The server is stopped when the test ends. Tests are skipped
// unless INTEGRATION_TESTS is set.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (downloads PostgreSQL)")
	}

	port := freePort(t)
	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(uint32(port)).
		Database(dbName).
		Username(user).
		Password(password).
		RuntimePath(t.TempDir()).
		Logger(io.Discard))
	if err := pg.Start(); err != nil {
		t.Fatalf("start embedded postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Stop(); err != nil {
			t.Logf("stop embedded postgres: %v", err)
		}
	})

	db, err := database.NewPostgres(&database.Config{
		Host:     "localhost",
		Port:     strconv.Itoa(port),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("connect embedded postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
