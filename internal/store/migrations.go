package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
	id               TEXT PRIMARY KEY,
	kind             TEXT NOT NULL,
	subject          TEXT NOT NULL,
	recipients       TEXT NOT NULL DEFAULT '[]',
	status           TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	screenshot_bytes INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE deliveries ADD COLUMN dump_bytes INTEGER NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
