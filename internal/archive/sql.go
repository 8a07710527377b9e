package archive

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS reports (
    id            TEXT PRIMARY KEY,
    source_name   TEXT NOT NULL,
    source_sha256 TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    report        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at);`

	insertReportSQL = `
INSERT INTO reports (id,
                     source_name,
                     source_sha256,
                     created_at,
                     report)
VALUES (?, ?, ?, ?, ?)`

	selectReportSQL = `
SELECT
    id,
    source_name,
    source_sha256,
    created_at,
    report
FROM reports
WHERE
    id = ?`

	listReportsSQL = `
SELECT
    id,
    source_name,
    source_sha256,
    created_at,
    report
FROM reports
ORDER BY created_at DESC, id
LIMIT ?`
)
