package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilter(t *testing.T) {
	filter, err := Filter(repository.Criteria{Conditions: []repository.Condition{
		{Field: model.FieldAppName, Op: repository.OpEq, Value: "shop"},
		{Field: model.FieldDuration, Op: repository.OpGte, Value: 1.0},
		{Field: model.FieldDuration, Op: repository.OpLte, Value: 9.0},
		{Field: model.FieldID, Op: repository.OpEq, Value: int64(4)},
	}})
	require.NoError(t, err)

	assert.Equal(t, bson.M{
		"app_name": "shop",
		"duration": bson.M{"$gte": 1.0, "$lte": 9.0},
		"_id":      int64(4),
	}, filter)
}

func TestFilter_Errors(t *testing.T) {
	_, err := Filter(repository.Criteria{Conditions: []repository.Condition{{Field: "$where", Op: repository.OpEq, Value: 1}}})
	assert.Error(t, err)

	_, err = Filter(repository.Criteria{Conditions: []repository.Condition{{Field: model.FieldPath, Op: "LIKE", Value: "/"}}})
	assert.Error(t, err)
}

func TestSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, Sort(repository.Criteria{}))

	got := Sort(repository.Criteria{Order: []repository.Order{{Field: model.FieldHTTPCode}}})
	assert.Equal(t, bson.D{{Key: "http_code", Value: 1}, {Key: "_id", Value: 1}}, got)
}
