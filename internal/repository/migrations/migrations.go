package migrations

import "fmt"

// PostgreSQL migrations
var PostgresSchema = `
CREATE TABLE IF NOT EXISTS api_log (
    id BIGSERIAL PRIMARY KEY,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    client_ip VARCHAR(45) NOT NULL,
    method VARCHAR(10) NOT NULL,
    path VARCHAR(512) NOT NULL,
    raw_query TEXT NOT NULL,
    raw_request_headers TEXT NOT NULL,
    raw_request_body TEXT NOT NULL,
    http_code INTEGER NOT NULL,
    http_reason VARCHAR(100) NOT NULL,
    raw_response_headers TEXT NOT NULL,
    raw_response_body TEXT,
    app_name VARCHAR(100) NOT NULL DEFAULT '',
    url_name VARCHAR(100) NOT NULL DEFAULT '',
    view_name VARCHAR(100) NOT NULL DEFAULT '',
    func_name VARCHAR(100) NOT NULL DEFAULT '',
    exception TEXT NOT NULL DEFAULT '',
    traceback TEXT NOT NULL DEFAULT '',
    django_error_page TEXT,
    start_time TIMESTAMP WITH TIME ZONE NOT NULL,
    end_time TIMESTAMP WITH TIME ZONE NOT NULL,
    duration DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_log_created_at ON api_log(created_at);
CREATE INDEX IF NOT EXISTS idx_api_log_http_code ON api_log(http_code);
CREATE INDEX IF NOT EXISTS idx_api_log_app_name ON api_log(app_name);
CREATE INDEX IF NOT EXISTS idx_api_log_path ON api_log(path);
`

// OracleSchema holds one statement per entry; go-ora executes a single
// statement per call. "name is already used" (ORA-00955) and "index already
// exists" (ORA-01408) errors are ignored so the migration can be re-run.
// Text columns are nullable because Oracle stores empty strings as NULL.
var OracleSchema = []string{
	`CREATE SEQUENCE api_log_seq START WITH 1 INCREMENT BY 1 NOCACHE`,
	`CREATE TABLE api_log (
        "ID" NUMBER(19) PRIMARY KEY,
        "CREATED_AT" TIMESTAMP WITH TIME ZONE NOT NULL,
        "CLIENT_IP" VARCHAR2(45),
        "METHOD" VARCHAR2(10),
        "PATH" VARCHAR2(512),
        "RAW_QUERY" CLOB,
        "RAW_REQUEST_HEADERS" CLOB,
        "RAW_REQUEST_BODY" CLOB,
        "HTTP_CODE" NUMBER(5),
        "HTTP_REASON" VARCHAR2(100),
        "RAW_RESPONSE_HEADERS" CLOB,
        "RAW_RESPONSE_BODY" CLOB,
        "APP_NAME" VARCHAR2(100),
        "URL_NAME" VARCHAR2(100),
        "VIEW_NAME" VARCHAR2(100),
        "FUNC_NAME" VARCHAR2(100),
        "EXCEPTION" CLOB,
        "TRACEBACK" CLOB,
        "DJANGO_ERROR_PAGE" CLOB,
        "START_TIME" TIMESTAMP WITH TIME ZONE NOT NULL,
        "END_TIME" TIMESTAMP WITH TIME ZONE NOT NULL,
        "DURATION" BINARY_DOUBLE NOT NULL
    )`,
	`CREATE INDEX idx_api_log_created_at ON api_log("CREATED_AT")`,
	`CREATE INDEX idx_api_log_http_code ON api_log("HTTP_CODE")`,
	`CREATE INDEX idx_api_log_app_name ON api_log("APP_NAME")`,
}

// Couchbase indexes
func GetCouchbaseIndexes(bucketName string) []string {
	return []string{
		fmt.Sprintf("CREATE PRIMARY INDEX ON `%s`", bucketName),
		fmt.Sprintf("CREATE INDEX idx_api_log_created_at ON `%s`(STR_TO_MILLIS(created_at)) WHERE META().id LIKE 'api_log::%%'", bucketName),
		fmt.Sprintf("CREATE INDEX idx_api_log_http_code ON `%s`(http_code) WHERE META().id LIKE 'api_log::%%'", bucketName),
		fmt.Sprintf("CREATE INDEX idx_api_log_app_name ON `%s`(app_name) WHERE META().id LIKE 'api_log::%%'", bucketName),
	}
}
