package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/repository/migrations"
)

const table = "api_log"

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	pool, err := pgxpool.Connect(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &PostgresRepository{Pool: pool}, nil
}

func (r *PostgresRepository) Save(ctx context.Context, log *model.APILog) error {
	repository.Stamp(log, time.Now())

	fields, values := repository.InsertColumns(log)
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
		marks[i] = repository.Postgres.Placeholder(i + 1)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if err := r.Pool.QueryRow(ctx, stmt, values...).Scan(&log.ID); err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	log := &model.APILog{}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", repository.Postgres.Columns(), table)
	err := r.Pool.QueryRow(ctx, stmt, id).Scan(repository.ScanTargets(log)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api log %d: %w", id, err)
	}
	return log, nil
}

func (r *PostgresRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	stmt, args, countStmt, countArgs, err := repository.Postgres.Select(table, c)
	if err != nil {
		return nil, 0, err
	}

	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("query", stmt).Int("args", len(args)).Msg("Querying api logs")

	var total int64
	if err := r.Pool.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}

	rows, err := r.Pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query api logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.APILog, 0)
	for rows.Next() {
		log := &model.APILog{}
		if err := rows.Scan(repository.ScanTargets(log)...); err != nil {
			return nil, 0, fmt.Errorf("scan api log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (r *PostgresRepository) Close() error {
	r.Pool.Close()
	return nil
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting PostgreSQL migrations")

	_, err := r.Pool.Exec(ctx, migrations.PostgresSchema)
	if err != nil {
		log.Error().Err(err).Msg("PostgreSQL migrations failed")
		return fmt.Errorf("migration error: %w", err)
	}

	log.Info().Msg("PostgreSQL migrations completed successfully")
	return nil
}
