//go:build integration

// Package testutil starts throwaway MySQL instances for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage          = "mysql:8.0.36"
	mysqlDatabase       = "worklog"
	mysqlUser           = "root"
	mysqlPassword       = "secret"
	mysqlStartupTimeout = 2 * time.Minute
)

var mysqlPort = nat.Port("3306/tcp")

// MySQL is a running container and a pool connected to it.
type MySQL struct {
	Container testcontainers.Container
	DB        *sql.DB
	// DSN reaches the container from the test process.
	DSN string
}

// StartMySQL starts a MySQL container and registers its teardown on t.
// The test is skipped when Docker is unavailable.
func StartMySQL(t *testing.T, ctx context.Context) MySQL {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mysql container in short mode")
	}

	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{string(mysqlPort)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": mysqlPassword,
			"MYSQL_DATABASE":      mysqlDatabase,
		},
		WaitingFor: wait.ForSQL(mysqlPort, "mysql", func(host string, port nat.Port) string {
			return dsn(host, port.Port())
		}).WithStartupTimeout(mysqlStartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, mysqlPort)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	hostDSN := dsn(host, mapped.Port())
	db, err := sql.Open("mysql", hostDSN)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return MySQL{Container: container, DB: db, DSN: hostDSN}
}

// Exec runs statements in order and fails the test on the first error.
func Exec(t *testing.T, ctx context.Context, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func dsn(host, port string) string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		mysqlUser,
		mysqlPassword,
		host,
		port,
		mysqlDatabase,
	)
}
