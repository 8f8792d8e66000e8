package analysisdb

import (
	"strings"

	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

// Migrations for the analysis DB.
// The history DB is sqlite by default, but can be Postgres, so the only dialect difference
// (the auto increment primary key) is patched in here.
func Migrations(log logs.Log, driver string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	pk := "INTEGER PRIMARY KEY"
	if driver == dbh.DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	sql := func(s string) string {
		return strings.ReplaceAll(s, "$PK", pk)
	}

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx, sql(`
		CREATE TABLE analysis(
			id $PK,
			created_at BIGINT NOT NULL,
			media_kind TEXT NOT NULL,
			content_type TEXT NOT NULL,
			filename TEXT NOT NULL,
			final_label TEXT NOT NULL,
			confidence INT NOT NULL,
			evidence TEXT NOT NULL,
			units_processed INT NOT NULL,
			units_failed INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			preview TEXT NOT NULL,
			result TEXT
		);

		CREATE INDEX idx_analysis_created_at ON analysis (created_at);
		CREATE INDEX idx_analysis_final_label ON analysis (final_label);
	`)))

	return migs
}
