package helper

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfiguration carries the parameters needed to open a
// connection to the backing PostgreSQL instance.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// Database bundles the open connection pool with the logger every
// handler constructor threads through.
type Database struct {
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection pool against the given configuration
// and verifies it with a ping. If logger is nil, a PrettyHandler-backed
// logger writing to stdout is created.
func NewDatabase(config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration validation", fmt.Errorf("configuration is nil"))
	}

	if logger == nil {
		logger = slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
		}))
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode, config.Schema,
	)

	instance, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, NewError("open database connection", err)
	}

	instance.SetMaxOpenConns(25)
	instance.SetMaxIdleConns(10)
	instance.SetConnMaxLifetime(30 * time.Minute)

	if err := instance.Ping(); err != nil {
		return nil, NewError("ping database", err)
	}

	logger.Info("Connected to database", "host", config.Host, "port", config.Port, "database", config.Database)

	return &Database{Instance: instance, Logger: logger}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	if d == nil || d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}
