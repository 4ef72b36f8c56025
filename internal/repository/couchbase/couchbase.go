package couchbase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/repository/migrations"
)

const (
	keyPrefix  = "api_log::"
	counterKey = "counter::api_log"
)

type CouchbaseRepository struct {
	Cluster *gocb.Cluster
	Bucket  *gocb.Bucket
}

func NewCouchbaseRepository(connStr, bucketName, username, password string) (*CouchbaseRepository, error) {
	cluster, err := gocb.Connect(
		connStr,
		gocb.ClusterOptions{
			Username: username,
			Password: password,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to Couchbase: %w", err)
	}

	bucket := cluster.Bucket(bucketName)
	err = bucket.WaitUntilReady(5*time.Second, nil)
	if err != nil {
		return nil, fmt.Errorf("bucket not ready: %w", err)
	}

	return &CouchbaseRepository{
		Cluster: cluster,
		Bucket:  bucket,
	}, nil
}

// Dialect renders N1QL over the bucket. Datetimes are stored as RFC 3339
// strings, so they are compared and sorted as epoch milliseconds.
func (r *CouchbaseRepository) Dialect() repository.Dialect {
	return repository.Dialect{
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		Column: func(f model.Field) string {
			if f.Kind == model.KindTime {
				return fmt.Sprintf("STR_TO_MILLIS(b.`%s`)", f.Name)
			}
			return fmt.Sprintf("b.`%s`", f.Name)
		},
		Arg: func(f model.Field, v any) any {
			if t, ok := v.(time.Time); ok {
				return t.UnixMilli()
			}
			return v
		},
		Window: func(offset, limit, n int) (string, []any) {
			return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1), []any{limit, offset}
		},
	}
}

func (r *CouchbaseRepository) Save(ctx context.Context, log *model.APILog) error {
	collection := r.Bucket.DefaultCollection()

	counter, err := collection.Binary().Increment(counterKey, &gocb.IncrementOptions{
		Initial: 1,
		Delta:   1,
		Context: ctx,
	})
	if err != nil {
		return fmt.Errorf("next api log id: %w", err)
	}
	repository.Stamp(log, time.Now())

	doc := *log
	doc.ID = int64(counter.Content())
	_, err = collection.Insert(docKey(doc.ID), &doc, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	log.ID = doc.ID
	return nil
}

func (r *CouchbaseRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	res, err := r.Bucket.DefaultCollection().Get(docKey(id), &gocb.GetOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api log %d: %w", id, err)
	}
	log := &model.APILog{}
	if err := res.Content(log); err != nil {
		return nil, fmt.Errorf("decode api log %d: %w", id, err)
	}
	return log, nil
}

func (r *CouchbaseRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	d := r.Dialect()
	where, args, err := d.Where(c)
	if err != nil {
		return nil, 0, err
	}
	order, err := d.OrderBy(c)
	if err != nil {
		return nil, 0, err
	}

	scope := fmt.Sprintf(" META(b).id LIKE '%s%%'", keyPrefix)
	if where == "" {
		where = " WHERE" + scope
	} else {
		where += " AND" + scope
	}
	from := fmt.Sprintf(" FROM `%s` AS b", r.Bucket.Name())

	opts := &gocb.QueryOptions{
		PositionalParameters: args,
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
		Context:              ctx,
	}

	countRes, err := r.Cluster.Query("SELECT COUNT(*) AS total"+from+where, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}
	var count struct {
		Total int64 `json:"total"`
	}
	if err := countRes.One(&count); err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}

	stmt := "SELECT b.*" + from + where + order
	pageArgs := args
	if c.Limit > 0 {
		window, wargs := d.Window(max(c.Offset, 0), c.Limit, len(args)+1)
		stmt += window
		pageArgs = append(append([]any{}, args...), wargs...)
	}
	rows, err := r.Cluster.Query(stmt, &gocb.QueryOptions{
		PositionalParameters: pageArgs,
		ScanConsistency:      gocb.QueryScanConsistencyRequestPlus,
		Context:              ctx,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("query api logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.APILog, 0)
	for rows.Next() {
		log := &model.APILog{}
		if err := rows.Row(log); err != nil {
			return nil, 0, fmt.Errorf("decode api log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, count.Total, rows.Err()
}

func (r *CouchbaseRepository) Close() error {
	return r.Cluster.Close(nil)
}

func (r *CouchbaseRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting Couchbase migrations")

	indexes := migrations.GetCouchbaseIndexes(r.Bucket.Name())
	for _, indexQuery := range indexes {
		_, err := r.Cluster.Query(indexQuery, &gocb.QueryOptions{Context: ctx})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			log.Error().Err(err).Str("query", indexQuery).Msg("Failed to create Couchbase index")
			return fmt.Errorf("index creation error: %w", err)
		}
	}

	log.Info().Msg("Couchbase migrations completed successfully")
	return nil
}

func docKey(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}
