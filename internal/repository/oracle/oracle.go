package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/sijms/go-ora/v2"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/repository/migrations"
)

const table = "api_log"

type OracleRepository struct {
	DB *sql.DB
}

func NewOracleRepository(connStr string) (*OracleRepository, error) {
	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to Oracle: %w", err)
	}

	return &OracleRepository{DB: db}, nil
}

func (r *OracleRepository) Save(ctx context.Context, log *model.APILog) error {
	repository.Stamp(log, time.Now())

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT api_log_seq.NEXTVAL FROM DUAL`).Scan(&id); err != nil {
		return fmt.Errorf("next api log id: %w", err)
	}

	fields, values := repository.InsertColumns(log)
	cols := []string{repository.Oracle.Column(model.Field{Name: model.FieldID})}
	marks := []string{repository.Oracle.Placeholder(1)}
	args := []any{id}
	for i, f := range fields {
		cols = append(cols, repository.Oracle.Column(f))
		marks = append(marks, repository.Oracle.Placeholder(i+2))
		args = append(args, bindValue(values[i]))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.ID = id
	return nil
}

func (r *OracleRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE "ID" = :1`, repository.Oracle.Columns(), table)
	log, err := scanLog(r.DB.QueryRowContext(ctx, stmt, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api log %d: %w", id, err)
	}
	return log, nil
}

func (r *OracleRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	stmt, args, countStmt, countArgs, err := repository.Oracle.Select(table, c)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query api logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.APILog, 0)
	for rows.Next() {
		log, err := scanLog(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan api log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, total, rows.Err()
}

func (r *OracleRepository) Close() error {
	return r.DB.Close()
}

func (r *OracleRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting Oracle migrations")

	for _, stmt := range migrations.OracleSchema {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "ORA-00955") || strings.Contains(err.Error(), "ORA-01408") {
				continue
			}
			log.Error().Err(err).Msg("Oracle migrations failed")
			return fmt.Errorf("migration error: %w", err)
		}
	}

	log.Info().Msg("Oracle migrations completed successfully")
	return nil
}

// scanLog reads one row. Oracle returns NULL for empty strings, so every text
// column goes through sql.NullString.
func scanLog(scan func(dest ...any) error) (*model.APILog, error) {
	log := &model.APILog{}
	targets := make([]any, len(model.Fields))
	texts := make(map[int]*sql.NullString)
	for i, f := range model.Fields {
		if f.Kind == model.KindString || f.Kind == model.KindText {
			ns := &sql.NullString{}
			texts[i] = ns
			targets[i] = ns
			continue
		}
		targets[i] = log.Pointer(f.Name)
	}

	if err := scan(targets...); err != nil {
		return nil, err
	}

	for i, ns := range texts {
		f := model.Fields[i]
		switch p := log.Pointer(f.Name).(type) {
		case *string:
			*p = ns.String
		case **string:
			if ns.Valid {
				s := ns.String
				*p = &s
			}
		}
	}
	return log, nil
}

func bindValue(v any) any {
	if p, ok := v.(*string); ok {
		if p == nil {
			return sql.NullString{}
		}
		return sql.NullString{String: *p, Valid: true}
	}
	return v
}
