package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	ora "github.com/sijms/go-ora/v2"
	"github.com/tuncerburak97/apilog/internal/config"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/repository/couchbase"
	"github.com/tuncerburak97/apilog/internal/repository/gormstore"
	"github.com/tuncerburak97/apilog/internal/repository/memory"
	"github.com/tuncerburak97/apilog/internal/repository/mongo"
	"github.com/tuncerburak97/apilog/internal/repository/oracle"
	"github.com/tuncerburak97/apilog/internal/repository/postgres"
)

func NewRepository(cfg *config.DBConfig) (repository.LogRepository, error) {
	log.Info().
		Str("type", cfg.Type).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connecting to database")

	switch cfg.Type {
	case "postgres":
		return postgres.NewPostgresRepository(PostgresURL(cfg))

	case "oracle":
		return oracle.NewOracleRepository(OracleURL(cfg))

	case "couchbase":
		return couchbase.NewCouchbaseRepository(CouchbaseURL(cfg), cfg.Database, cfg.User, cfg.Password)

	case "mongodb":
		return mongo.NewMongoRepository(MongoURL(cfg), cfg.Database)

	case "sqlite":
		return gormstore.OpenSQLite(cfg.DSN)

	case "mysql":
		return gormstore.OpenMySQL(MySQLDSN(cfg), cfg.Pool.MaxConns, cfg.Pool.MaxIdleConns, cfg.Pool.ConnMaxLifetime)

	case "memory":
		return memory.NewMemoryRepository(), nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Open connects and runs migrations.
func Open(ctx context.Context, cfg *config.DBConfig) (repository.LogRepository, error) {
	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := repo.Migrate(log.Logger.WithContext(ctx)); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

// PostgresURL builds a pgx pool connection string.
func PostgresURL(cfg *config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?pool_max_conns=%d&pool_min_conns=%d",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.Pool.MaxConns, cfg.Pool.MinConns,
	)
}

func OracleURL(cfg *config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return ora.BuildUrl(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, nil)
}

func CouchbaseURL(cfg *config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("couchbase://%s:%d", cfg.Host, cfg.Port)
}

func MongoURL(cfg *config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.User, cfg.Password, cfg.Host, cfg.Port)
}

func MySQLDSN(cfg *config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}
