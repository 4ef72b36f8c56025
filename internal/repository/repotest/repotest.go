// Package repotest holds the behaviour every LogRepository backend must share.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
)

// Base is the creation time of the first fixture record.
var Base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Fixture builds the i-th test record. Records alternate between two apps,
// durations grow with i and every third one failed.
func Fixture(i int) *model.APILog {
	l := &model.APILog{
		CreatedAt: Base.Add(time.Duration(i) * time.Second),
		ClientIP:  "10.0.0.1",
		Method:    "GET",
		Path:      fmt.Sprintf("/items/%d", i),
		HTTPCode:  200,
		AppName:   "shop",
		URLName:   "item",
		ViewName:  "shop:item",
		FuncName:  "shop.Item",
		StartTime: Base.Add(time.Duration(i) * time.Second),
		EndTime:   Base.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
		Duration:  float64(10 * (i + 1)),
	}
	if i%2 == 1 {
		l.AppName = "billing"
	}
	if i%3 == 2 {
		body := `{"body":"{\"error\":\"boom\"}"}`
		l.HTTPCode = 500
		l.RawResponseBody = &body
	}
	return l
}

// Run exercises open's repository against the shared contract. open must
// return an empty, migrated repository.
func Run(t *testing.T, open func(t *testing.T) repository.LogRepository) {
	ctx := context.Background()

	seed := func(t *testing.T, n int) (repository.LogRepository, []int64) {
		repo := open(t)
		ids := make([]int64, n)
		for i := 0; i < n; i++ {
			l := Fixture(i)
			require.NoError(t, repo.Save(ctx, l))
			ids[i] = l.ID
		}
		return repo, ids
	}

	t.Run("SaveAssignsIncreasingIDs", func(t *testing.T) {
		_, ids := seed(t, 3)
		assert.Greater(t, ids[0], int64(0))
		assert.Greater(t, ids[1], ids[0])
		assert.Greater(t, ids[2], ids[1])
	})

	t.Run("SaveStampsCreatedAt", func(t *testing.T) {
		repo := open(t)
		l := Fixture(0)
		l.CreatedAt = time.Time{}
		require.NoError(t, repo.Save(ctx, l))
		assert.False(t, l.CreatedAt.IsZero())
	})

	t.Run("GetRoundTrip", func(t *testing.T) {
		repo, ids := seed(t, 3)

		got, err := repo.Get(ctx, ids[2])
		require.NoError(t, err)
		want := Fixture(2)
		assert.Equal(t, ids[2], got.ID)
		assert.Equal(t, want.Path, got.Path)
		assert.Equal(t, want.HTTPCode, got.HTTPCode)
		assert.Equal(t, want.AppName, got.AppName)
		assert.InDelta(t, want.Duration, got.Duration, 1e-9)
		assert.True(t, want.StartTime.Equal(got.StartTime), "start_time %v", got.StartTime)
		require.NotNil(t, got.RawResponseBody)
		assert.Equal(t, *want.RawResponseBody, *got.RawResponseBody)
		assert.Nil(t, got.ErrorPage)

		first, err := repo.Get(ctx, ids[0])
		require.NoError(t, err)
		assert.Nil(t, first.RawResponseBody)
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo, ids := seed(t, 1)
		_, err := repo.Get(ctx, ids[0]+100)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("QueryDefaultOrderNewestFirst", func(t *testing.T) {
		repo, ids := seed(t, 4)
		logs, total, err := repo.Query(ctx, repository.Criteria{})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		require.Len(t, logs, 4)
		for i, l := range logs {
			assert.Equal(t, ids[3-i], l.ID)
		}
	})

	t.Run("QueryEquality", func(t *testing.T) {
		repo, _ := seed(t, 6)
		logs, total, err := repo.Query(ctx, repository.Criteria{Conditions: []repository.Condition{
			{Field: model.FieldAppName, Op: repository.OpEq, Value: "billing"},
			{Field: model.FieldHTTPCode, Op: repository.OpEq, Value: 500},
		}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, logs, 1)
		assert.Equal(t, "/items/5", logs[0].Path)
	})

	t.Run("QueryRanges", func(t *testing.T) {
		repo, _ := seed(t, 6)
		logs, total, err := repo.Query(ctx, repository.Criteria{Conditions: []repository.Condition{
			{Field: model.FieldDuration, Op: repository.OpGte, Value: 20.0},
			{Field: model.FieldDuration, Op: repository.OpLte, Value: 40.0},
		}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, logs, 3)

		logs, total, err = repo.Query(ctx, repository.Criteria{Conditions: []repository.Condition{
			{Field: model.FieldStartTime, Op: repository.OpGte, Value: Base.Add(2 * time.Second)},
			{Field: model.FieldEndTime, Op: repository.OpLte, Value: Base.Add(4 * time.Second)},
		}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, logs, 2)
		assert.Equal(t, "/items/3", logs[0].Path)
		assert.Equal(t, "/items/2", logs[1].Path)
	})

	t.Run("QueryOrderAndWindow", func(t *testing.T) {
		repo, _ := seed(t, 7)
		logs, total, err := repo.Query(ctx, repository.Criteria{
			Order:  []repository.Order{{Field: model.FieldDuration}},
			Offset: 2,
			Limit:  3,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 7, total)
		require.Len(t, logs, 3)
		assert.Equal(t, []string{"/items/2", "/items/3", "/items/4"}, paths(logs))

		logs, total, err = repo.Query(ctx, repository.Criteria{Offset: 10, Limit: 5})
		require.NoError(t, err)
		assert.EqualValues(t, 7, total)
		assert.Empty(t, logs)
	})

	t.Run("QueryUnknownField", func(t *testing.T) {
		repo := open(t)
		_, _, err := repo.Query(ctx, repository.Criteria{Conditions: []repository.Condition{
			{Field: "password", Op: repository.OpEq, Value: "x"},
		}})
		assert.Error(t, err)

		_, _, err = repo.Query(ctx, repository.Criteria{Order: []repository.Order{{Field: "password"}}})
		assert.Error(t, err)
	})

	t.Run("QueryNegativeOffset", func(t *testing.T) {
		repo, _ := seed(t, 3)
		logs, total, err := repo.Query(ctx, repository.Criteria{Offset: -40, Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, logs, 2)
	})
}

func paths(logs []*model.APILog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Path
	}
	return out
}
