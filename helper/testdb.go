package helper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// KNOWLEDGE_DB_* environment variables feed NewDatabaseConfiguration.
// LoadMemoryConfig shares the KNOWLEDGE_ prefix but does not read these
// KNOWLEDGE_DB_* names.
const (
	envDBHost     = "KNOWLEDGE_DB_HOST"
	envDBPort     = "KNOWLEDGE_DB_PORT"
	envDBDatabase = "KNOWLEDGE_DB_DATABASE"
	envDBUsername = "KNOWLEDGE_DB_USERNAME"
	envDBPassword = "KNOWLEDGE_DB_PASSWORD"
	envDBSchema   = "KNOWLEDGE_DB_SCHEMA"
	envDBSSLMode  = "KNOWLEDGE_DB_SSLMODE"
)

// MustStartPostgresContainer spins up a disposable pgvector+ltree capable
// PostgreSQL instance for examples and integration tests. It returns a
// teardown func plus the published port, or an error if the container
// cannot be started.
func MustStartPostgresContainer() (func(context.Context) error, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, "", NewError("resolve mapped port", err)
	}

	teardown := func(ctx context.Context) error {
		return container.Terminate(ctx)
	}

	return teardown, fmt.Sprintf("%d", port.Int()), nil
}

// SetTestDatabaseConfigEnvs points the KNOWLEDGE_DB_* environment
// variables at the disposable container started by
// MustStartPostgresContainer, scoped to t's lifetime.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Helper()
	t.Setenv(envDBHost, "localhost")
	t.Setenv(envDBPort, port)
	t.Setenv(envDBDatabase, "database")
	t.Setenv(envDBUsername, "user")
	t.Setenv(envDBPassword, "password")
	t.Setenv(envDBSchema, "public")
	t.Setenv(envDBSSLMode, "disable")
}

// NewDatabaseConfiguration builds a DatabaseConfiguration from the
// KNOWLEDGE_DB_* environment variables.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	v := viper.New()
	v.SetEnvPrefix("KNOWLEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &DatabaseConfiguration{
		Host:     v.GetString("db_host"),
		Port:     v.GetString("db_port"),
		Database: v.GetString("db_database"),
		Username: v.GetString("db_username"),
		Password: v.GetString("db_password"),
		Schema:   v.GetString("db_schema"),
		SSLMode:  v.GetString("db_sslmode"),
	}

	if config.Host == "" || config.Port == "" || config.Database == "" {
		return nil, NewError("database configuration validation", fmt.Errorf("%s, %s and %s must be set", envDBHost, envDBPort, envDBDatabase))
	}

	return config, nil
}

// NewTestDatabase wraps NewDatabase for test contexts and panics
// instead of returning an error, since a broken connection makes every
// subsequent test in the calling package meaningless.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	db, err := NewDatabase(config, nil)
	if err != nil {
		panic(fmt.Sprintf("failed to open test database: %v", err))
	}
	return db
}
