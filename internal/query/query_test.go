package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/model"
	"github.com/tuncerburak97/apilog/internal/repository"
	"github.com/tuncerburak97/apilog/internal/repository/memory"
	"github.com/tuncerburak97/apilog/internal/repository/repotest"
)

type readerFunc func(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error)

func (f readerFunc) Get(ctx context.Context, id int64) (*model.APILog, error) {
	return nil, repository.ErrNotFound
}

func (f readerFunc) Query(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
	return f(ctx, c)
}

func seeded(t *testing.T, n int) *memory.MemoryRepository {
	t.Helper()
	repo := memory.NewMemoryRepository()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Save(context.Background(), repotest.Fixture(i)))
	}
	return repo
}

func TestParse_Defaults(t *testing.T) {
	req, err := Parse(map[string]string{"http_code": "", "page": "  "}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, DefaultPageSize, req.PageSize)
	assert.Empty(t, req.Criteria.Conditions)
	assert.Empty(t, req.Criteria.Order)
	assert.Equal(t, 0, req.Criteria.Offset)
	assert.Equal(t, DefaultPageSize, req.Criteria.Limit)
	assert.Empty(t, req.Show)
}

func TestParse_Pagination(t *testing.T) {
	cases := []struct {
		page, size       string
		wantPage, wantSz int
	}{
		{"0", "0", 1, 1},
		{"-3", "500", 1, MaxPageSize},
		{"3", "10", 3, 10},
		{"2", "50", 2, 50},
		{"9223372036854775807", "20", MaxPage, 20},
		{"99999999999999999999999", "99999999999999999999999", MaxPage, MaxPageSize},
	}
	for _, tc := range cases {
		req, err := Parse(map[string]string{ParamPage: tc.page, ParamPageSize: tc.size}, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.wantPage, req.Page)
		assert.Equal(t, tc.wantSz, req.PageSize)
		assert.Equal(t, (tc.wantPage-1)*tc.wantSz, req.Criteria.Offset)
		assert.GreaterOrEqual(t, req.Criteria.Offset, 0)
		assert.Equal(t, tc.wantSz, req.Criteria.Limit)
	}
}

func TestParse_Filters(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	req, err := Parse(map[string]string{
		ParamStartTime:     "2024-05-01 15:00:02",
		ParamEndTime:       "2024-05-01 15:00:04",
		ParamAppName:       "shop",
		ParamRequestPath:   "/items/2",
		ParamHTTPCode:      "500",
		ParamDurationStart: "0",
		ParamDurationEnd:   "30.5",
	}, loc)
	require.NoError(t, err)

	conds := map[string][]repository.Condition{}
	for _, c := range req.Criteria.Conditions {
		conds[c.Field] = append(conds[c.Field], c)
	}

	require.Len(t, conds[model.FieldStartTime], 1)
	start := conds[model.FieldStartTime][0]
	assert.Equal(t, repository.OpGte, start.Op)
	assert.True(t, start.Value.(time.Time).Equal(repotest.Base.Add(2*time.Second)))

	require.Len(t, conds[model.FieldEndTime], 1)
	assert.Equal(t, repository.OpLte, conds[model.FieldEndTime][0].Op)
	assert.True(t, conds[model.FieldEndTime][0].Value.(time.Time).Equal(repotest.Base.Add(4*time.Second)))

	assert.Equal(t, []repository.Condition{{Field: model.FieldAppName, Op: repository.OpEq, Value: "shop"}}, conds[model.FieldAppName])
	assert.Equal(t, []repository.Condition{{Field: model.FieldPath, Op: repository.OpEq, Value: "/items/2"}}, conds[model.FieldPath])
	assert.Equal(t, []repository.Condition{{Field: model.FieldHTTPCode, Op: repository.OpEq, Value: 500}}, conds[model.FieldHTTPCode])
	assert.Equal(t, []repository.Condition{
		{Field: model.FieldDuration, Op: repository.OpGte, Value: 0.0},
		{Field: model.FieldDuration, Op: repository.OpLte, Value: 30.5},
	}, conds[model.FieldDuration])
}

func TestParse_OrderAndShow(t *testing.T) {
	for v, want := range map[string]repository.Order{
		"-duration": {Field: model.FieldDuration, Desc: true},
		"+path":     {Field: model.FieldPath},
		"http_code": {Field: model.FieldHTTPCode},
	} {
		req, err := Parse(map[string]string{ParamOrderBy: v}, nil)
		require.NoError(t, err, v)
		assert.Equal(t, []repository.Order{want}, req.Criteria.Order, v)
	}

	req, err := Parse(map[string]string{ParamShow: "id, path,bogus,,duration"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "path", "duration"}, req.Show)
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		ParamPage:          "x",
		ParamPageSize:      "1.5",
		ParamHTTPCode:      "abc",
		ParamDurationStart: "fast",
		ParamDurationEnd:   "1e",
		ParamStartTime:     "2024-05-01",
		ParamEndTime:       "yesterday",
		ParamOrderBy:       "-nope",
	}
	for param, value := range cases {
		_, err := Parse(map[string]string{param: value}, nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, param)
		assert.Equal(t, param, verr.Param)
		assert.Equal(t, value, verr.Value)
		assert.Contains(t, err.Error(), param)
	}

	_, err := Parse(map[string]string{ParamOrderBy: "-nope"}, nil)
	assert.Contains(t, err.Error(), `"nope" does not exist`)
	assert.Contains(t, err.Error(), model.FieldList())
}

func TestExecute_DetailViews(t *testing.T) {
	engine := NewEngine(seeded(t, 6), time.UTC)
	vc := model.ViewContext{BaseURL: "http://audit.local", Prefix: "/_apilog"}

	res, err := engine.Execute(context.Background(), map[string]string{
		ParamAppName:  "billing",
		ParamHTTPCode: "500",
	}, vc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPageSize, res.PageSize)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Logs, 1)

	l := res.Logs[0]
	assert.Equal(t, "/items/5", l["path"])
	assert.Equal(t, "http://audit.local/_apilog/6", l["data_url"])
	assert.Equal(t, map[string]any{"error": "boom"}, l["response_body"])
	assert.Equal(t, "2024-05-01 12:00:05.000000", l["start_time"])
}

func TestExecute_ProjectionAndPaging(t *testing.T) {
	engine := NewEngine(seeded(t, 6), time.UTC)

	res, err := engine.Execute(context.Background(), map[string]string{
		ParamShow:     "id,duration",
		ParamOrderBy:  "duration",
		ParamPageSize: "2",
		ParamPage:     "2",
	}, model.ViewContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.Total)
	assert.Equal(t, []map[string]any{
		{"id": int64(3), "duration": 30.0},
		{"id": int64(4), "duration": 40.0},
	}, res.Logs)

	res, err = engine.Execute(context.Background(), map[string]string{
		ParamDurationStart: "20",
		ParamDurationEnd:   "40",
		ParamShow:          "id",
	}, model.ViewContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Total)
	assert.Equal(t, []map[string]any{{"id": int64(4)}, {"id": int64(3)}, {"id": int64(2)}}, res.Logs)

	for _, page := range []string{"9", "9223372036854775807"} {
		res, err = engine.Execute(context.Background(), map[string]string{ParamPage: page}, model.ViewContext{})
		require.NoError(t, err)
		assert.EqualValues(t, 6, res.Total)
		assert.NotNil(t, res.Logs)
		assert.Empty(t, res.Logs)
	}
}

func TestExecute_Errors(t *testing.T) {
	called := false
	engine := NewEngine(readerFunc(func(ctx context.Context, c repository.Criteria) ([]*model.APILog, int64, error) {
		called = true
		return nil, 0, errors.New("connection reset")
	}), nil)

	_, err := engine.Execute(context.Background(), map[string]string{ParamHTTPCode: "2xx"}, model.ViewContext{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, called, "invalid queries never reach the store")

	_, err = engine.Execute(context.Background(), nil, model.ViewContext{})
	require.Error(t, err)
	assert.True(t, called)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, errors.As(err, &verr))
}
