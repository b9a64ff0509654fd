// Package dbfactory implements the database factory: a process-wide
// singleton connection with fail-fast env-var validation, using raw
// database/sql plus lib/pq, explicit connection-pool tuning, and
// Ping-on-connect. Persistence's ORM access (persistence package, gorm)
// opens its own handle for table operations; this package exists purely
// for the startup-time "can we even reach the database" gate before the
// worker does anything else.
package dbfactory

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/haka-quant/optionengine/apperr"
	"github.com/haka-quant/optionengine/config"
)

var (
	mu       sync.Mutex
	instance *sql.DB
)

// RequiredEnvVars lists the database env vars required at startup.
// ValidateAndConnect does not read it; it checks the required set through
// config.ValidateEnvVars.
var RequiredEnvVars = []string{
	"VNPY_DATABASE_DRIVER",
	"VNPY_DATABASE_DATABASE",
	"VNPY_DATABASE_USER",
	"VNPY_DATABASE_PASSWORD",
}

// ValidateAndConnect validates required env vars and, if all present,
// opens (or returns the existing) singleton *sql.DB, pinging it with a
// bounded timeout. Any failure here is fail-fast — callers MUST abort
// startup, never fall back to an embedded store.
func ValidateAndConnect(cfg *config.Config, connectTimeout time.Duration) (*sql.DB, error) {
	if missing := config.ValidateEnvVars(); len(missing) > 0 {
		return nil, &apperr.ConfigError{Missing: missing}
	}

	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}

	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUser, cfg.DatabasePassword, cfg.DatabaseName,
	)

	conn, err := sql.Open(cfg.DatabaseDriver, connStr)
	if err != nil {
		return nil, &apperr.ConnectionError{Target: "database", Err: fmt.Errorf("open: %w", err)}
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingDone := make(chan error, 1)
	go func() { pingDone <- conn.Ping() }()

	select {
	case err := <-pingDone:
		if err != nil {
			conn.Close()
			return nil, &apperr.ConnectionError{Target: "database", Err: err}
		}
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, &apperr.ConnectionError{Target: "database", Err: fmt.Errorf("ping timed out after %s", connectTimeout)}
	}

	log.Println("✅ Database connection established")
	instance = conn
	return instance, nil
}

// Get returns the singleton connection, if ValidateAndConnect has already
// succeeded once this process.
func Get() (*sql.DB, bool) {
	mu.Lock()
	defer mu.Unlock()
	return instance, instance != nil
}

// Reset clears the singleton. Test-only — production code never calls this.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		instance.Close()
	}
	instance = nil
}
