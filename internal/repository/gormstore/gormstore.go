// Package gormstore stores api logs through GORM, backed by SQLite or MySQL.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormRepository struct {
	DB *gorm.DB
}

// OpenSQLite opens a SQLite database at path (use "file::memory:" style DSNs
// for throwaway databases).
func OpenSQLite(path string) (*GormRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	return &GormRepository{DB: db}, nil
}

// OpenMySQL opens a pooled MySQL connection.
func OpenMySQL(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*GormRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	sqlDB.SetConnMaxLifetime(maxLife)

	return &GormRepository{DB: db}, nil
}

func (r *GormRepository) Save(ctx context.Context, log *model.APILog) error {
	repository.Stamp(log, time.Now())
	log.ID = 0
	if err := r.DB.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	log := &model.APILog{}
	err := r.DB.WithContext(ctx).First(log, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api log %d: %w", id, err)
	}
	return log, nil
}

func (r *GormRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	if err := c.Validate(); err != nil {
		return nil, 0, err
	}
	q := r.DB.WithContext(ctx).Model(&model.APILog{})
	for _, cond := range c.Conditions {
		q = q.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Op), cond.Value)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}

	for _, o := range c.Ordering() {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		q = q.Order(o.Field + " " + dir)
	}
	if c.Offset > 0 {
		q = q.Offset(c.Offset)
	}
	if c.Limit > 0 {
		q = q.Limit(c.Limit)
	}

	logs := make([]*model.APILog, 0)
	if err := q.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("query api logs: %w", err)
	}
	return logs, total, nil
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Str("dialect", r.DB.Dialector.Name()).Msg("Starting GORM migrations")

	if err := r.DB.WithContext(ctx).AutoMigrate(&model.APILog{}); err != nil {
		log.Error().Err(err).Msg("GORM migrations failed")
		return fmt.Errorf("migration error: %w", err)
	}

	log.Info().Msg("GORM migrations completed successfully")
	return nil
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
