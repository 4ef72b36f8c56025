package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "api_log"
	countersName   = "counters"
)

type MongoRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoRepository(uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

func (r *MongoRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func (r *MongoRepository) Save(ctx context.Context, log *model.APILog) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return fmt.Errorf("next api log id: %w", err)
	}
	repository.Stamp(log, time.Now())

	doc := *log
	doc.ID = id
	if _, err := r.db.Collection(collectionName).InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	log.ID = id
	return nil
}

func (r *MongoRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.db.Collection(countersName).FindOneAndUpdate(ctx,
		bson.M{"_id": collectionName},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (r *MongoRepository) Get(ctx context.Context, id int64) (*model.APILog, error) {
	log := &model.APILog{}
	err := r.db.Collection(collectionName).FindOne(ctx, bson.M{"_id": id}).Decode(log)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api log %d: %w", id, err)
	}
	return log, nil
}

func (r *MongoRepository) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	filter, err := Filter(c)
	if err != nil {
		return nil, 0, err
	}
	coll := r.db.Collection(collectionName)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count api logs: %w", err)
	}

	opts := options.Find().SetSort(Sort(c))
	if c.Offset > 0 {
		opts.SetSkip(int64(c.Offset))
	}
	if c.Limit > 0 {
		opts.SetLimit(int64(c.Limit))
	}
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("query api logs: %w", err)
	}

	logs := make([]*model.APILog, 0)
	if err := cur.All(ctx, &logs); err != nil {
		return nil, 0, fmt.Errorf("decode api logs: %w", err)
	}
	return logs, total, nil
}

func (r *MongoRepository) Migrate(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	log.Info().Msg("Starting MongoDB migrations")

	_, err := r.db.Collection(collectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: model.FieldCreatedAt, Value: -1}}},
		{Keys: bson.D{{Key: model.FieldHTTPCode, Value: 1}}},
		{Keys: bson.D{{Key: model.FieldAppName, Value: 1}}},
		{Keys: bson.D{{Key: model.FieldPath, Value: 1}}},
	})
	if err != nil {
		log.Error().Err(err).Msg("MongoDB migrations failed")
		return fmt.Errorf("migration error: %w", err)
	}

	log.Info().Msg("MongoDB migrations completed successfully")
	return nil
}

var operators = map[repository.Op]string{
	repository.OpGte: "$gte",
	repository.OpLte: "$lte",
}

// Filter translates criteria conditions into a query document. Range
// conditions on the same field are merged.
func Filter(c repository.Criteria) (bson.M, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, cond := range c.Conditions {
		key := fieldKey(cond.Field)
		if cond.Op == repository.OpEq {
			filter[key] = cond.Value
			continue
		}
		op, ok := operators[cond.Op]
		if !ok {
			return nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
		rng, _ := filter[key].(bson.M)
		if rng == nil {
			rng = bson.M{}
			filter[key] = rng
		}
		rng[op] = cond.Value
	}
	return filter, nil
}

func Sort(c repository.Criteria) bson.D {
	order := c.Ordering()
	sort := make(bson.D, 0, len(order))
	for _, o := range order {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: fieldKey(o.Field), Value: dir})
	}
	return sort
}

func fieldKey(name string) string {
	if name == model.FieldID {
		return "_id"
	}
	return name
}
