package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuncerburak97/apilog/internal/model"
)

func TestCriteria_Ordering(t *testing.T) {
	assert.Equal(t, DefaultOrder, Criteria{}.Ordering())

	got := Criteria{Order: []Order{{Field: model.FieldDuration}}}.Ordering()
	assert.Equal(t, []Order{{Field: model.FieldDuration}, {Field: model.FieldID}}, got)

	byID := []Order{{Field: model.FieldID, Desc: true}}
	assert.Equal(t, byID, Criteria{Order: byID}.Ordering())
}

func TestPostgres_Select(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Criteria{
		Conditions: []Condition{
			{Field: model.FieldAppName, Op: OpEq, Value: "shop"},
			{Field: model.FieldStartTime, Op: OpGte, Value: since},
		},
		Order:  []Order{{Field: model.FieldHTTPCode, Desc: true}},
		Offset: 40,
		Limit:  20,
	}

	query, args, count, countArgs, err := Postgres.Select("api_log", c)
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM api_log WHERE app_name = $1 AND start_time >= $2", count)
	assert.Equal(t, []any{"shop", since}, countArgs)

	assert.True(t, strings.HasPrefix(query, "SELECT id, created_at, client_ip,"))
	assert.True(t, strings.HasSuffix(query,
		" FROM api_log WHERE app_name = $1 AND start_time >= $2 ORDER BY http_code DESC, id DESC LIMIT $3 OFFSET $4"))
	assert.Equal(t, []any{"shop", since, 20, 40}, args)
}

func TestOracle_Select(t *testing.T) {
	c := Criteria{
		Conditions: []Condition{{Field: model.FieldDuration, Op: OpLte, Value: 1.5}},
		Limit:      10,
	}

	query, args, count, _, err := Oracle.Select("api_log", c)
	require.NoError(t, err)

	assert.Equal(t, `SELECT COUNT(*) FROM api_log WHERE "DURATION" <= :1`, count)
	assert.True(t, strings.HasSuffix(query,
		`WHERE "DURATION" <= :1 ORDER BY "CREATED_AT" DESC, "ID" DESC OFFSET :2 ROWS FETCH NEXT :3 ROWS ONLY`))
	assert.Equal(t, []any{1.5, 0, 10}, args)
}

func TestSelect_NoWindowWithoutLimit(t *testing.T) {
	query, args, _, _, err := Postgres.Select("api_log", Criteria{})
	require.NoError(t, err)
	assert.NotContains(t, query, "LIMIT")
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestSelect_RejectsUnknownNames(t *testing.T) {
	_, _, _, _, err := Postgres.Select("api_log", Criteria{Conditions: []Condition{{Field: "1=1; --", Op: OpEq, Value: 1}}})
	assert.Error(t, err)

	_, _, _, _, err = Postgres.Select("api_log", Criteria{Order: []Order{{Field: "nope"}}})
	assert.Error(t, err)

	_, _, _, _, err = Postgres.Select("api_log", Criteria{Conditions: []Condition{{Field: model.FieldID, Op: "LIKE", Value: 1}}})
	assert.Error(t, err)
}

func TestSelect_NegativeOffsetIsZero(t *testing.T) {
	_, args, _, _, err := Postgres.Select("api_log", Criteria{Offset: -40, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []any{20, 0}, args)
}

func TestCriteria_Validate(t *testing.T) {
	assert.NoError(t, Criteria{
		Conditions: []Condition{{Field: model.FieldHTTPCode, Op: OpEq, Value: 200}},
		Order:      []Order{{Field: model.FieldDuration, Desc: true}},
	}.Validate())

	assert.Error(t, Criteria{Conditions: []Condition{{Field: "password", Op: OpEq, Value: "x"}}}.Validate())
	assert.Error(t, Criteria{Conditions: []Condition{{Field: model.FieldPath, Op: "LIKE", Value: "/"}}}.Validate())
	assert.Error(t, Criteria{Order: []Order{{Field: "password"}}}.Validate())
}

func TestScanTargetsAndInsertColumns(t *testing.T) {
	l := &model.APILog{Path: "/x"}
	targets := ScanTargets(l)
	require.Len(t, targets, len(model.Fields))
	*(targets[4].(*string)) = "/y"
	assert.Equal(t, "/y", l.Path)

	fields, values := InsertColumns(l)
	assert.Len(t, fields, len(model.Fields)-1)
	assert.Len(t, values, len(fields))
	assert.Equal(t, model.FieldCreatedAt, fields[0].Name)
}

func TestStamp(t *testing.T) {
	now := time.Now()
	l := &model.APILog{}
	Stamp(l, now)
	assert.Equal(t, now, l.CreatedAt)

	earlier := now.Add(-time.Hour)
	l.CreatedAt = earlier
	Stamp(l, now)
	assert.Equal(t, earlier, l.CreatedAt)
}
