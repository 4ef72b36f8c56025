package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tuncerburak97/apilog/internal/model"
)

func TestSchemasCoverEveryField(t *testing.T) {
	var oracleTable string
	for _, stmt := range OracleSchema {
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			oracleTable = stmt
		}
	}
	assert.NotEmpty(t, oracleTable)
	for _, f := range model.Fields {
		assert.Contains(t, PostgresSchema, "\n    "+f.Name+" ", f.Name)
		assert.Contains(t, oracleTable, `"`+strings.ToUpper(f.Name)+`"`, f.Name)
	}
}

func TestCouchbaseIndexesScopedToLogs(t *testing.T) {
	indexes := GetCouchbaseIndexes("audit")
	assert.Equal(t, "CREATE PRIMARY INDEX ON `audit`", indexes[0])
	for _, idx := range indexes[1:] {
		assert.Contains(t, idx, "ON `audit`")
		assert.Contains(t, idx, "LIKE 'api_log::%'")
	}
}
