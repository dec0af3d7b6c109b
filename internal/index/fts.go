package index

import (
	"context"
	"database/sql"
)

const ftsTableName = "entries_fts"

// createFTSTable and its sync triggers implement spec §4.6's "entries_fts:
// full-text index over title, body, tags, kind, kept in sync by triggers on
// insert/update/delete of entries" using the standard FTS5 external-content
// pattern: entries_fts stores no data of its own, it indexes entries
// directly and is kept current by AFTER triggers.
func createFTSTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS `+ftsTableName+` USING fts5(
		title, body, tags_text, kind,
		content='`+tableName+`', content_rowid='rowid'
	)`)
	if err != nil {
		return err
	}

	// mddb writes entries with INSERT OR REPLACE (pkg/mddb/schema.go), which
	// SQLite executes as an implicit DELETE-then-INSERT on conflict - an AFTER
	// UPDATE trigger would never fire against this table and is omitted.
	statements := []string{
		`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON ` + tableName + ` BEGIN
			INSERT INTO ` + ftsTableName + `(rowid, title, body, tags_text, kind)
			VALUES (new.rowid, new.title, new.body, new.tags_text, new.kind);
		END`,
		`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON ` + tableName + ` BEGIN
			INSERT INTO ` + ftsTableName + `(` + ftsTableName + `, rowid, title, body, tags_text, kind)
			VALUES ('delete', old.rowid, old.title, old.body, old.tags_text, old.kind);
		END`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func dropFTSTable(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		"DROP TRIGGER IF EXISTS entries_ai",
		"DROP TRIGGER IF EXISTS entries_ad",
		"DROP TABLE IF EXISTS " + ftsTableName,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
